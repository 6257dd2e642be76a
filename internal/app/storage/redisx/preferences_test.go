package redisx

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPreferenceStoreIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	ctx := context.Background()
	store, err := Open(ctx, Options{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.SetPreference(ctx, "u1", "language", "vi"); err != nil {
		t.Fatalf("set: %v", err)
	}
	lang, err := store.GetPreference(ctx, "u1", "language")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lang != "vi" {
		t.Fatalf("language = %q, want vi", lang)
	}

	missing, err := store.GetPreference(ctx, "u1", "referral_code")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != "" {
		t.Fatalf("missing key = %q, want empty", missing)
	}

	if err := store.SetPreference(ctx, "", "language", "vi"); err == nil {
		t.Fatal("empty user id accepted")
	}
}
