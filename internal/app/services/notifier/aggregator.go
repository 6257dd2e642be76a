// Package notifier maintains per-user realtime notification counters fed by
// an initial seed query and a change-feed subscription.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/notification"
	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/metrics"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// Aggregator tracks notification counters for one identity. It owns its
// counters exclusively: consumers read snapshots and call Clear, nothing
// else mutates the state.
//
// On Bind the aggregator opens the subscription first and buffers deliveries
// until the seed query completes, then replays the buffer. Increments are
// commutative, so replay order does not affect the result, and the transient
// under-count window between subscribe and seed is closed.
type Aggregator struct {
	feed    feed.Feed
	friends storage.FriendshipStore
	log     *logger.Logger
	alerter Alerter

	mu       sync.Mutex
	identity string
	gen      uint64
	cancel   func()
	counters notification.Counters
	seeded   bool
	pending  []feed.Event
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithAlerter attaches the best-effort alert hook fired on new friend
// requests.
func WithAlerter(a Alerter) Option {
	return func(agg *Aggregator) { agg.alerter = a }
}

// NewAggregator creates an unbound aggregator. All counters are zero and no
// subscription is active until Bind is called.
func NewAggregator(f feed.Feed, friends storage.FriendshipStore, log *logger.Logger, opts ...Option) *Aggregator {
	if log == nil {
		log = logger.NewDefault("notifier")
	}
	agg := &Aggregator{
		feed:    f,
		friends: friends,
		log:     log,
	}
	for _, opt := range opts {
		opt(agg)
	}
	return agg
}

// Bind points the aggregator at an identity. Any previous subscription is
// cancelled and all counters reset to zero before the new subscription opens,
// so at most one subscription is ever active. Binding the empty identity
// detaches the aggregator. Rebinding the current identity is a no-op.
func (a *Aggregator) Bind(ctx context.Context, userID string) error {
	a.mu.Lock()
	if userID == a.identity {
		a.mu.Unlock()
		return nil
	}

	a.detachLocked()
	a.identity = userID
	if userID == "" {
		a.mu.Unlock()
		return nil
	}

	gen := a.gen
	a.cancel = a.feed.Subscribe(subscriptionFilter(userID), func(ev feed.Event) {
		a.deliver(gen, ev)
	})
	a.mu.Unlock()

	// Seed outside the lock: the count query is a remote call and must not
	// block snapshot reads or deliveries, which are buffered until seeded.
	count, err := a.friends.CountPendingRequests(ctx, userID)
	if err != nil {
		// Degrade to a zero seed; streamed events still accumulate.
		a.log.WithError(err).WithField("user_id", userID).Warn("seed pending friend requests failed")
		count = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		// Identity changed while seeding; the seed belongs to a dead binding.
		return nil
	}
	a.counters.FriendRequests = count
	a.counters.UnreadTotal = count
	a.seeded = true
	buffered := a.pending
	a.pending = nil
	for _, ev := range buffered {
		a.applyLocked(ev)
	}
	if err != nil {
		return fmt.Errorf("seed counters for %s: %w", userID, err)
	}
	return nil
}

// Stop detaches the aggregator and zeroes all counters.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detachLocked()
	a.identity = ""
}

// detachLocked cancels any active subscription and resets all state. The
// generation bump turns late deliveries from the old subscription into no-ops.
func (a *Aggregator) detachLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.gen++
	a.counters = notification.Counters{}
	a.seeded = false
	a.pending = nil
}

// Identity returns the currently bound identity, or "" when detached.
func (a *Aggregator) Identity() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() notification.Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}

// Clear zeroes the unread total. Category counters are lifetime totals for
// the current binding and deliberately survive clears.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.UnreadTotal = 0
	metrics.RecordCounterClear()
}

// subscriptionFilter is the server-side portion of the event selection:
// table multiplexing plus the recipient filter on friendship inserts.
// Authorship self-filters stay client-side in classify.
func subscriptionFilter(userID string) feed.Filter {
	tables := feed.ForTables(feed.TableFriendships, feed.TableReactions, feed.TableComments, feed.TableDonations)
	return func(ev feed.Event) bool {
		if !tables(ev) {
			return false
		}
		if ev.Table == feed.TableFriendships {
			return ev.Kind == feed.KindInsert && ev.RecipientID == userID
		}
		return true
	}
}

// deliver routes one subscription delivery. Deliveries for a stale
// generation are dropped.
func (a *Aggregator) deliver(gen uint64, ev feed.Event) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	if !a.seeded {
		a.pending = append(a.pending, ev)
		a.mu.Unlock()
		return
	}
	a.applyLocked(ev)
	a.mu.Unlock()
}

func (a *Aggregator) applyLocked(ev feed.Event) {
	cat, ok := classify(ev, a.identity)
	if !ok {
		return
	}
	a.counters.Bump(cat)
	metrics.RecordNotificationEvent(string(cat))

	if cat == notification.CategoryFriendRequest && a.alerter != nil {
		alerter := a.alerter
		// Best-effort side effect: failure must never reach counter state.
		go func() {
			defer func() { _ = recover() }()
			if err := alerter.Alert(cat); err != nil {
				a.log.WithError(err).Debug("notification alert failed")
			}
		}()
	}
}

// classify maps a feed event to the counter category it increments, applying
// the per-table acceptance rules.
func classify(ev feed.Event, identity string) (notification.Category, bool) {
	switch ev.Table {
	case feed.TableFriendships:
		if ev.Kind != feed.KindInsert || ev.RecipientID != identity {
			return "", false
		}
		if ev.Status != "" && ev.Status != string(friendship.StatusPending) {
			return "", false
		}
		return notification.CategoryFriendRequest, true

	case feed.TableReactions:
		if ev.Kind != feed.KindInsert || ev.ActorID == identity {
			return "", false
		}
		return notification.CategoryReaction, true

	case feed.TableComments:
		if ev.Kind != feed.KindInsert || ev.ActorID == identity {
			return "", false
		}
		return notification.CategoryComment, true

	case feed.TableDonations:
		if ev.ActorID == identity {
			return "", false
		}
		// Only transitions into the completed state count.
		if ev.Status != string(donation.StatusCompleted) || ev.OldStatus == string(donation.StatusCompleted) {
			return "", false
		}
		return notification.CategoryDonation, true
	}
	return "", false
}
