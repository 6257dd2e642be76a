package supabase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/system"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	handshakeTimeout  = 10 * time.Second
	maxBackoff        = 30 * time.Second
)

// RealtimeFeed keeps a websocket open to Supabase Realtime, joins one
// postgres_changes channel per watched table, and republishes decoded row
// changes on the feed bus. It reconnects with exponential backoff and
// implements the system.Service lifecycle.
type RealtimeFeed struct {
	url    string
	tables []string
	sink   feed.Publisher
	log    *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ref     int
}

var _ system.Service = (*RealtimeFeed)(nil)

// NewRealtimeFeed creates a realtime feed publishing into sink. The watched
// tables default to the notification tables.
func NewRealtimeFeed(client *Client, sink feed.Publisher, log *logger.Logger, tables ...string) (*RealtimeFeed, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	if len(tables) == 0 {
		tables = []string{feed.TableFriendships, feed.TableReactions, feed.TableComments, feed.TableDonations}
	}

	wsURL := client.ProjectURL()
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[len("https"):]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + client.APIKey() + "&vsn=1.0.0"

	return &RealtimeFeed{
		url:    wsURL,
		tables: tables,
		sink:   sink,
		log:    log,
	}, nil
}

// Name implements system.Service.
func (r *RealtimeFeed) Name() string { return "supabase-realtime" }

// Start opens the connection loop in the background.
func (r *RealtimeFeed) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("realtime feed already running")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(runCtx)
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (r *RealtimeFeed) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run dials, joins, and pumps messages until the context ends, reconnecting
// with backoff after any failure.
func (r *RealtimeFeed) run(ctx context.Context) {
	defer r.wg.Done()

	backoff := time.Second
	for {
		if err := r.session(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.WithError(err).WithField("retry_in", backoff.String()).Warn("realtime session ended")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *RealtimeFeed) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	for _, table := range r.tables {
		if err := r.join(conn, table); err != nil {
			return err
		}
	}
	r.log.WithField("tables", strings.Join(r.tables, ",")).Info("realtime channels joined")

	// Close the connection when the context ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Serialize with heartbeat writes; the connection allows only
			// one writer at a time.
			r.mu.Lock()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			r.mu.Unlock()
			conn.Close()
		case <-stop:
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	go func() {
		for {
			select {
			case <-heartbeat.C:
				r.writeJSON(conn, map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     r.nextRef(),
				})
			case <-stop:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		r.dispatch(message)
	}
}

func (r *RealtimeFeed) join(conn *websocket.Conn, table string) error {
	ref := r.nextRef()
	msg := map[string]any{
		"topic": "realtime:public:" + table,
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]any{
					{"event": "*", "schema": "public", "table": table},
				},
			},
		},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := r.writeJSON(conn, msg); err != nil {
		return fmt.Errorf("join %s: %w", table, err)
	}
	return nil
}

func (r *RealtimeFeed) writeJSON(conn *websocket.Conn, msg map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return conn.WriteJSON(msg)
}

func (r *RealtimeFeed) nextRef() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ref++
	return fmt.Sprintf("%d", r.ref)
}

// dispatch decodes one realtime frame and publishes row changes. Non-change
// frames (join replies, heartbeat acks, presence) are ignored.
func (r *RealtimeFeed) dispatch(message []byte) {
	root := gjson.ParseBytes(message)
	event := root.Get("event").String()
	if event != "postgres_changes" && event != "INSERT" && event != "UPDATE" && event != "DELETE" {
		return
	}

	data := root.Get("payload.data")
	if !data.Exists() {
		data = root.Get("payload")
	}

	ev, ok := decodeChange(data)
	if !ok {
		r.log.WithField("topic", root.Get("topic").String()).Debug("unparseable change frame")
		return
	}
	r.sink.Publish(ev)
}

// decodeChange maps a postgres_changes payload onto a feed event. Column
// naming follows the application schema: friendships carry requester_id and
// recipient_id, activity rows carry user_id and author_id, donations carry
// donor_id.
func decodeChange(data gjson.Result) (feed.Event, bool) {
	table := data.Get("table").String()
	kindRaw := data.Get("type").String()
	if table == "" || kindRaw == "" {
		return feed.Event{}, false
	}

	var kind feed.Kind
	switch kindRaw {
	case "INSERT":
		kind = feed.KindInsert
	case "UPDATE":
		kind = feed.KindUpdate
	case "DELETE":
		kind = feed.KindDelete
	default:
		return feed.Event{}, false
	}

	record := data.Get("record")
	old := data.Get("old_record")

	ev := feed.Event{
		Table:     table,
		Kind:      kind,
		Status:    record.Get("status").String(),
		OldStatus: old.Get("status").String(),
	}
	if id := record.Get("id"); id.Exists() {
		ev.ID = id.String()
	}
	if ts := data.Get("commit_timestamp").String(); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			ev.Timestamp = parsed
		}
	}

	switch table {
	case feed.TableFriendships:
		ev.ActorID = record.Get("requester_id").String()
		ev.RecipientID = record.Get("recipient_id").String()
	case feed.TableDonations:
		ev.ActorID = record.Get("donor_id").String()
		ev.RecipientID = record.Get("campaign_id").String()
	default:
		ev.ActorID = record.Get("user_id").String()
		ev.RecipientID = record.Get("author_id").String()
	}
	return ev, true
}
