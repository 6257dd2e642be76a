// Package i18n serves UI strings by language. Catalogs load lazily on first
// use and are memoized; concurrent first loads of the same language collapse
// into one loader call.
package i18n

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// DefaultLanguage is the fallback when a language or key has no translation.
const DefaultLanguage = "en"

// Loader fetches the key-value catalog for one language.
type Loader func(ctx context.Context, lang string) (map[string]string, error)

// Catalog resolves translations with per-language lazy loading.
type Catalog struct {
	loader   Loader
	fallback string
	log      *logger.Logger

	mu     sync.RWMutex
	loaded map[string]map[string]string
	group  singleflight.Group
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithFallback overrides the fallback language.
func WithFallback(lang string) Option {
	return func(c *Catalog) {
		if lang != "" {
			c.fallback = lang
		}
	}
}

// New creates a catalog over the given loader.
func New(loader Loader, log *logger.Logger, opts ...Option) (*Catalog, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if log == nil {
		log = logger.NewDefault("i18n")
	}
	c := &Catalog{
		loader:   loader,
		fallback: DefaultLanguage,
		log:      log,
		loaded:   make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromFS creates a catalog loading <lang>.yaml files from fsys.
func NewFromFS(fsys fs.FS, log *logger.Logger, opts ...Option) (*Catalog, error) {
	return New(func(_ context.Context, lang string) (map[string]string, error) {
		data, err := fs.ReadFile(fsys, lang+".yaml")
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", lang, err)
		}
		var entries map[string]string
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", lang, err)
		}
		return entries, nil
	}, log, opts...)
}

// Translate resolves key in lang, falling back to the default language and
// finally to the key itself. Failed loads degrade to the fallback chain.
func (c *Catalog) Translate(ctx context.Context, lang, key string) string {
	if lang == "" {
		lang = c.fallback
	}

	if value, ok := c.lookup(ctx, lang, key); ok {
		return value
	}
	if lang != c.fallback {
		if value, ok := c.lookup(ctx, c.fallback, key); ok {
			return value
		}
	}
	return key
}

// Languages returns the languages loaded so far.
func (c *Catalog) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	langs := make([]string, 0, len(c.loaded))
	for lang := range c.loaded {
		langs = append(langs, lang)
	}
	return langs
}

func (c *Catalog) lookup(ctx context.Context, lang, key string) (string, bool) {
	entries, err := c.catalog(ctx, lang)
	if err != nil {
		c.log.WithError(err).WithField("lang", lang).Warn("catalog load failed")
		return "", false
	}
	value, ok := entries[key]
	return value, ok
}

// catalog returns the memoized catalog for lang, loading it on first use.
func (c *Catalog) catalog(ctx context.Context, lang string) (map[string]string, error) {
	c.mu.RLock()
	entries, ok := c.loaded[lang]
	c.mu.RUnlock()
	if ok {
		return entries, nil
	}

	result, err, _ := c.group.Do(lang, func() (any, error) {
		// Re-check under the group: a concurrent caller may have stored it.
		c.mu.RLock()
		cached, ok := c.loaded[lang]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loaded, err := c.loader(ctx, lang)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			loaded = map[string]string{}
		}

		c.mu.Lock()
		c.loaded[lang] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]string), nil
}
