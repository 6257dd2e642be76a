package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// Hub hands out one aggregator per identity, reference-counted so concurrent
// consumers (multiple sessions of the same user) share a single subscription.
// Releasing the last reference stops the aggregator and frees its
// subscription.
type Hub struct {
	feed    feed.Feed
	friends storage.FriendshipStore
	log     *logger.Logger
	opts    []Option

	mu      sync.Mutex
	entries map[string]*hubEntry
}

type hubEntry struct {
	agg  *Aggregator
	refs int
}

// NewHub creates an empty hub. Options are applied to every aggregator it
// creates.
func NewHub(f feed.Feed, friends storage.FriendshipStore, log *logger.Logger, opts ...Option) *Hub {
	if log == nil {
		log = logger.NewDefault("notifier-hub")
	}
	return &Hub{
		feed:    f,
		friends: friends,
		log:     log,
		opts:    opts,
		entries: make(map[string]*hubEntry),
	}
}

// Acquire returns the aggregator for the identity, creating and binding it on
// first use. Every Acquire must be paired with a Release.
func (h *Hub) Acquire(ctx context.Context, userID string) (*Aggregator, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	h.mu.Lock()
	if entry, ok := h.entries[userID]; ok {
		entry.refs++
		h.mu.Unlock()
		return entry.agg, nil
	}

	agg := NewAggregator(h.feed, h.friends, h.log.WithField("user_id", userID), h.opts...)
	h.entries[userID] = &hubEntry{agg: agg, refs: 1}
	h.mu.Unlock()

	if err := agg.Bind(ctx, userID); err != nil {
		// Binding degrades rather than fails hard; keep the entry and report.
		h.log.WithError(err).WithField("user_id", userID).Warn("aggregator bind degraded")
	}
	return agg, nil
}

// Release drops one reference to the identity's aggregator, stopping it when
// no references remain. Releasing an unknown identity is a no-op.
func (h *Hub) Release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.entries[userID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs > 0 {
		return
	}
	delete(h.entries, userID)
	entry.agg.Stop()
}

// Peek returns the aggregator for an identity without taking a reference.
func (h *Hub) Peek(userID string) (*Aggregator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.agg, true
}

// Active returns the number of identities with live aggregators.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
