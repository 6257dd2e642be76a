// Package supabase provides a thin Supabase REST and Realtime client.
// The REST side talks to PostgREST under /rest/v1; the realtime side keeps a
// websocket open and republishes row changes on the in-process feed bus.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config configures the Supabase client.
type Config struct {
	ProjectURL string
	// APIKey is the anon or service-role key sent as both apikey and bearer.
	APIKey string
	// Optional additional headers to send on every request.
	DefaultHeaders map[string]string
	// Optional explicit allowlist; if empty, derived from ProjectURL host.
	AllowedHosts []string
	// Timeout applies per request; defaults to 15s.
	Timeout time.Duration
}

// Client performs Supabase REST calls.
type Client struct {
	cfg        Config
	httpClient *http.Client
	prefix     string
	allowed    map[string]struct{}
}

// Response carries a REST response body with its status and the exact-count
// header PostgREST returns when asked.
type Response struct {
	StatusCode int
	Body       []byte
	// ContentRange is the raw Content-Range header, e.g. "0-9/42".
	ContentRange string
}

// New creates a Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	trimmed := strings.TrimRight(cfg.ProjectURL, "/")

	allowed := make(map[string]struct{})
	if len(cfg.AllowedHosts) == 0 {
		if u, err := url.Parse(cfg.ProjectURL); err == nil && u.Hostname() != "" {
			allowed[u.Hostname()] = struct{}{}
		}
	} else {
		for _, h := range cfg.AllowedHosts {
			if h != "" {
				allowed[h] = struct{}{}
			}
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		prefix:     trimmed + "/rest/v1",
		allowed:    allowed,
	}, nil
}

// ProjectURL returns the configured project URL without a trailing slash.
func (c *Client) ProjectURL() string {
	return strings.TrimSuffix(c.prefix, "/rest/v1")
}

// APIKey returns the configured API key. The realtime client needs it for the
// websocket handshake.
func (c *Client) APIKey() string { return c.cfg.APIKey }

// Select performs a GET on a table with an optional query string (already
// encoded, e.g. "select=id&status=eq.pending").
func (c *Client) Select(ctx context.Context, table, query string) (*Response, error) {
	if table == "" {
		return nil, fmt.Errorf("table is required")
	}
	path := c.prefix + "/" + url.PathEscape(table)
	if query != "" {
		path += "?" + query
	}
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

// Insert performs a POST insert into a table and returns the created rows.
func (c *Client) Insert(ctx context.Context, table string, body []byte) (*Response, error) {
	if table == "" {
		return nil, fmt.Errorf("table is required")
	}
	return c.do(ctx, http.MethodPost, c.prefix+"/"+url.PathEscape(table), body, map[string]string{
		"Prefer": "return=representation",
	})
}

// Update performs a PATCH on rows matched by the query string.
func (c *Client) Update(ctx context.Context, table, query string, body []byte) (*Response, error) {
	if table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if query == "" {
		return nil, fmt.Errorf("refusing an unfiltered update on %s", table)
	}
	path := c.prefix + "/" + url.PathEscape(table) + "?" + query
	return c.do(ctx, http.MethodPatch, path, body, map[string]string{
		"Prefer": "return=representation",
	})
}

// Count returns the exact row count for a filtered table without fetching
// rows. The query string carries the filters, e.g. "status=eq.pending".
func (c *Client) Count(ctx context.Context, table, query string) (int, error) {
	if table == "" {
		return 0, fmt.Errorf("table is required")
	}
	path := c.prefix + "/" + url.PathEscape(table) + "?select=id"
	if query != "" {
		path += "&" + query
	}
	resp, err := c.do(ctx, http.MethodHead, path, nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return 0, err
	}
	return parseContentRangeTotal(resp.ContentRange)
}

// RPC invokes a Postgres function exposed under /rest/v1/rpc.
func (c *Client) RPC(ctx context.Context, function string, args any) (*Response, error) {
	if function == "" {
		return nil, fmt.Errorf("function is required")
	}
	var body []byte
	if args != nil {
		var err error
		body, err = json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal rpc args: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, c.prefix+"/rpc/"+url.PathEscape(function), body, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, extra map[string]string) (*Response, error) {
	if err := c.ensureAllowed(rawURL); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.cfg.DefaultHeaders {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	for k, v := range extra {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase %s %s: status %d: %s",
			method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return &Response{
		StatusCode:   resp.StatusCode,
		Body:         respBody,
		ContentRange: resp.Header.Get("Content-Range"),
	}, nil
}

func (c *Client) ensureAllowed(rawURL string) error {
	if len(c.allowed) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("invalid url host")
	}
	if _, ok := c.allowed[host]; !ok {
		return fmt.Errorf("host not allowed for supabase: %s", host)
	}
	return nil
}

// parseContentRangeTotal extracts the total from a "start-end/total" header.
func parseContentRangeTotal(header string) (int, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", header)
	}
	total := header[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("count unavailable in Content-Range %q", header)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("bad count in Content-Range %q: %w", header, err)
	}
	return n, nil
}
