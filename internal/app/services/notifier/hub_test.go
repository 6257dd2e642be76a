package notifier

import (
	"context"
	"testing"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/memory"
)

func TestHub_SharedAggregatorPerIdentity(t *testing.T) {
	store := memory.New()
	if _, err := store.CreateFriendship(context.Background(), friendship.Friendship{
		RequesterID: "u2", RecipientID: "u1", Status: friendship.StatusPending,
	}); err != nil {
		t.Fatalf("create friendship: %v", err)
	}
	bus := feed.NewBus(0)
	hub := NewHub(bus, store, nil)

	first, err := hub.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := hub.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if first != second {
		t.Fatal("expected a shared aggregator per identity")
	}
	if hub.Active() != 1 {
		t.Fatalf("active = %d, want 1", hub.Active())
	}
	if got := first.Snapshot(); got.FriendRequests != 1 {
		t.Fatalf("seed missed: %+v", got)
	}

	hub.Release("u1")
	if _, ok := hub.Peek("u1"); !ok {
		t.Fatal("aggregator dropped while still referenced")
	}
	hub.Release("u1")
	if _, ok := hub.Peek("u1"); ok {
		t.Fatal("aggregator kept after last release")
	}
	if first.Identity() != "" {
		t.Fatalf("released aggregator still bound to %q", first.Identity())
	}
}

func TestHub_AcquireRequiresIdentity(t *testing.T) {
	hub := NewHub(feed.NewBus(0), memory.New(), nil)
	if _, err := hub.Acquire(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty identity")
	}
}
