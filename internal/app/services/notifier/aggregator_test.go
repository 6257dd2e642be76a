package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/notification"
	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/memory"
)

func seedPending(t *testing.T, store *memory.Store, recipient string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.CreateFriendship(context.Background(), friendship.Friendship{
			RequesterID: "someone",
			RecipientID: recipient,
			Status:      friendship.StatusPending,
		})
		if err != nil {
			t.Fatalf("create friendship: %v", err)
		}
	}
}

func TestAggregator_EndToEnd(t *testing.T) {
	store := memory.New()
	seedPending(t, store, "u1", 3)
	bus := feed.NewBus(0)

	agg := NewAggregator(bus, store, nil)
	if err := agg.Bind(context.Background(), "u1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	got := agg.Snapshot()
	want := notification.Counters{UnreadTotal: 3, FriendRequests: 3}
	if got != want {
		t.Fatalf("after seed: got %+v want %+v", got, want)
	}

	bus.Publish(feed.Event{Table: feed.TableComments, Kind: feed.KindInsert, ActorID: "u2"})
	got = agg.Snapshot()
	want = notification.Counters{UnreadTotal: 4, FriendRequests: 3, Comments: 1}
	if got != want {
		t.Fatalf("after comment: got %+v want %+v", got, want)
	}

	agg.Clear()
	got = agg.Snapshot()
	want = notification.Counters{UnreadTotal: 0, FriendRequests: 3, Comments: 1}
	if got != want {
		t.Fatalf("after clear: got %+v want %+v", got, want)
	}
}

func TestAggregator_ClearOnlyTouchesUnread(t *testing.T) {
	store := memory.New()
	bus := feed.NewBus(0)
	agg := NewAggregator(bus, store, nil)
	if err := agg.Bind(context.Background(), "u1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	bus.Publish(feed.Event{Table: feed.TableReactions, Kind: feed.KindInsert, ActorID: "u2"})
	bus.Publish(feed.Event{Table: feed.TableDonations, Kind: feed.KindUpdate, ActorID: "u3", OldStatus: "pending", Status: "completed"})
	before := agg.Snapshot()

	agg.Clear()
	agg.Clear() // idempotent

	after := agg.Snapshot()
	if after.UnreadTotal != 0 {
		t.Fatalf("unread not cleared: %+v", after)
	}
	before.UnreadTotal = 0
	if after != before {
		t.Fatalf("clear changed category counters: before %+v after %+v", before, after)
	}
}

func TestAggregator_SelfAuthoredEventsIgnored(t *testing.T) {
	store := memory.New()
	bus := feed.NewBus(0)
	agg := NewAggregator(bus, store, nil)
	if err := agg.Bind(context.Background(), "u1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	bus.Publish(feed.Event{Table: feed.TableReactions, Kind: feed.KindInsert, ActorID: "u1"})
	bus.Publish(feed.Event{Table: feed.TableComments, Kind: feed.KindInsert, ActorID: "u1"})
	bus.Publish(feed.Event{Table: feed.TableDonations, Kind: feed.KindUpdate, ActorID: "u1", OldStatus: "pending", Status: "completed"})
	bus.Publish(feed.Event{Table: feed.TableFriendships, Kind: feed.KindInsert, RecipientID: "other"})

	if got := agg.Snapshot(); got != (notification.Counters{}) {
		t.Fatalf("self or misdirected events counted: %+v", got)
	}
}

func TestAggregator_DonationOnlyCompletedTransitions(t *testing.T) {
	store := memory.New()
	bus := feed.NewBus(0)
	agg := NewAggregator(bus, store, nil)
	if err := agg.Bind(context.Background(), "u1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	// Not transitions into completed.
	bus.Publish(feed.Event{Table: feed.TableDonations, Kind: feed.KindInsert, ActorID: "u2", Status: "pending"})
	bus.Publish(feed.Event{Table: feed.TableDonations, Kind: feed.KindUpdate, ActorID: "u2", OldStatus: "completed", Status: "completed"})
	if got := agg.Snapshot(); got.Donations != 0 {
		t.Fatalf("non-transition counted: %+v", got)
	}

	bus.Publish(feed.Event{Table: feed.TableDonations, Kind: feed.KindUpdate, ActorID: "u2", OldStatus: "pending", Status: "completed"})
	if got := agg.Snapshot(); got.Donations != 1 || got.UnreadTotal != 1 {
		t.Fatalf("completed transition not counted: %+v", got)
	}
}

func TestAggregator_UnboundHasNoState(t *testing.T) {
	store := memory.New()
	bus := feed.NewBus(0)
	agg := NewAggregator(bus, store, nil)

	bus.Publish(feed.Event{Table: feed.TableComments, Kind: feed.KindInsert, ActorID: "u2"})
	if got := agg.Snapshot(); got != (notification.Counters{}) {
		t.Fatalf("unbound aggregator accumulated state: %+v", got)
	}
	if agg.Identity() != "" {
		t.Fatalf("unbound aggregator has identity %q", agg.Identity())
	}
}

func TestAggregator_RebindResetsAndDropsStaleDeliveries(t *testing.T) {
	store := memory.New()
	seedPending(t, store, "u1", 2)
	bus := feed.NewBus(0)

	agg := NewAggregator(bus, store, nil)
	if err := agg.Bind(context.Background(), "u1"); err != nil {
		t.Fatalf("bind u1: %v", err)
	}
	bus.Publish(feed.Event{Table: feed.TableComments, Kind: feed.KindInsert, ActorID: "u2"})

	if err := agg.Bind(context.Background(), "u9"); err != nil {
		t.Fatalf("bind u9: %v", err)
	}
	if got := agg.Snapshot(); got != (notification.Counters{}) {
		t.Fatalf("counters not reset on rebind: %+v", got)
	}

	// Events targeting the old identity must not register.
	bus.Publish(feed.Event{Table: feed.TableFriendships, Kind: feed.KindInsert, RecipientID: "u1"})
	if got := agg.Snapshot(); got != (notification.Counters{}) {
		t.Fatalf("stale-identity event counted: %+v", got)
	}

	bus.Publish(feed.Event{Table: feed.TableFriendships, Kind: feed.KindInsert, RecipientID: "u9"})
	got := agg.Snapshot()
	if got.FriendRequests != 1 || got.UnreadTotal != 1 {
		t.Fatalf("new-identity event missed: %+v", got)
	}
}

func TestAggregator_AlerterFailureDoesNotAffectCounters(t *testing.T) {
	store := memory.New()
	bus := feed.NewBus(0)

	var calls sync.WaitGroup
	calls.Add(1)
	agg := NewAggregator(bus, store, nil, WithAlerter(AlerterFunc(func(notification.Category) error {
		defer calls.Done()
		return errors.New("audio device unavailable")
	})))
	if err := agg.Bind(context.Background(), "u1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	bus.Publish(feed.Event{Table: feed.TableFriendships, Kind: feed.KindInsert, RecipientID: "u1"})
	calls.Wait()

	got := agg.Snapshot()
	if got.FriendRequests != 1 || got.UnreadTotal != 1 {
		t.Fatalf("alerter failure affected counters: %+v", got)
	}
}

// slowFriendStore blocks the seed query so events can race it. entered is
// closed once the query begins, which is after the subscription opened.
type slowFriendStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowFriendStore) CountPendingRequests(ctx context.Context, recipientID string) (int, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.CountPendingRequests(ctx, recipientID)
}

func TestAggregator_EventsBufferedUntilSeeded(t *testing.T) {
	store := &slowFriendStore{
		Store:   memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	seedPending(t, store.Store, "u1", 3)
	bus := feed.NewBus(0)
	agg := NewAggregator(bus, store, nil)

	done := make(chan error, 1)
	go func() { done <- agg.Bind(context.Background(), "u1") }()

	// Deliver an event into the window between subscription-open and
	// seed-completion; it must be buffered, not lost.
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("seed query never started")
	}
	bus.Publish(feed.Event{Table: feed.TableComments, Kind: feed.KindInsert, ActorID: "u2"})

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("bind: %v", err)
	}

	got := agg.Snapshot()
	if got.FriendRequests != 3 || got.Comments != 1 || got.UnreadTotal != 4 {
		t.Fatalf("buffered event lost or double counted: %+v", got)
	}
}

func TestFormatBadge(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{-1, ""},
		{0, ""},
		{1, "1"},
		{99, "99"},
		{100, "99+"},
		{12345, "99+"},
	}
	for _, tc := range cases {
		if got := FormatBadge(tc.n); got != tc.want {
			t.Fatalf("FormatBadge(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
