package i18n

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
)

func TestCatalog_TranslateWithFallback(t *testing.T) {
	fsys := fstest.MapFS{
		"en.yaml": {Data: []byte("greeting: Hello\nfarewell: Goodbye\n")},
		"vi.yaml": {Data: []byte("greeting: Xin chào\n")},
	}
	catalog, err := NewFromFS(fsys, nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	ctx := context.Background()
	if got := catalog.Translate(ctx, "vi", "greeting"); got != "Xin chào" {
		t.Fatalf("greeting = %q", got)
	}
	// Missing in vi falls back to en.
	if got := catalog.Translate(ctx, "vi", "farewell"); got != "Goodbye" {
		t.Fatalf("farewell = %q", got)
	}
	// Missing everywhere falls back to the key.
	if got := catalog.Translate(ctx, "vi", "unknown.key"); got != "unknown.key" {
		t.Fatalf("unknown = %q", got)
	}
	// Empty language uses the default.
	if got := catalog.Translate(ctx, "", "greeting"); got != "Hello" {
		t.Fatalf("default greeting = %q", got)
	}
}

func TestCatalog_LoadsOncePerLanguage(t *testing.T) {
	var loads int64
	loader := func(_ context.Context, lang string) (map[string]string, error) {
		atomic.AddInt64(&loads, 1)
		return map[string]string{"greeting": "hi-" + lang}, nil
	}
	catalog, err := New(loader, nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := catalog.Translate(ctx, "vi", "greeting"); got != "hi-vi" {
				t.Errorf("greeting = %q", got)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&loads); n != 1 {
		t.Fatalf("loader ran %d times, want 1", n)
	}

	catalog.Translate(ctx, "vi", "greeting")
	if n := atomic.LoadInt64(&loads); n != 1 {
		t.Fatalf("loader re-ran after memoization: %d", n)
	}
}

func TestCatalog_LoadFailureDegradesToKey(t *testing.T) {
	loader := func(_ context.Context, lang string) (map[string]string, error) {
		if lang == "en" {
			return map[string]string{"greeting": "Hello"}, nil
		}
		return nil, errors.New("catalog service down")
	}
	catalog, err := New(loader, nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	ctx := context.Background()
	// Broken language falls through to the default catalog.
	if got := catalog.Translate(ctx, "fr", "greeting"); got != "Hello" {
		t.Fatalf("greeting = %q", got)
	}
	if got := catalog.Translate(ctx, "fr", "missing"); got != "missing" {
		t.Fatalf("missing = %q", got)
	}
	// A failed load is not memoized; recovery is possible on retry.
	if langs := catalog.Languages(); len(langs) != 1 || langs[0] != "en" {
		t.Fatalf("loaded languages = %v", langs)
	}
}
