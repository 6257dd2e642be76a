package donations

import (
	"context"
	"testing"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/feed"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/memory"
)

func TestService_RecordValidation(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		donor    string
		campaign string
		amount   string
	}{
		{"missing donor", "", "c1", "1"},
		{"missing campaign", "u1", "", "1"},
		{"bad amount", "u1", "c1", "abc"},
		{"zero amount", "u1", "c1", "0"},
		{"negative amount", "u1", "c1", "-1"},
	}
	for _, tc := range cases {
		if _, err := svc.Record(ctx, tc.donor, tc.campaign, tc.amount, ""); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestService_CompleteEmitsTransition(t *testing.T) {
	bus := feed.NewBus(0)
	svc := New(memory.New(), bus, nil)
	ctx := context.Background()

	var events []feed.Event
	cancel := bus.Subscribe(feed.ForTables(feed.TableDonations), func(ev feed.Event) {
		events = append(events, ev)
	})
	defer cancel()

	d, err := svc.Record(ctx, "u1", "c1", "2.5", "BNB")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if d.Status != donation.StatusPending {
		t.Fatalf("new donation not pending: %+v", d)
	}

	completed, err := svc.Complete(ctx, d.ID, "0xabc")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != donation.StatusCompleted || completed.TxHash != "0xabc" {
		t.Fatalf("unexpected completed donation: %+v", completed)
	}

	// Completing again is idempotent and emits nothing new.
	if _, err := svc.Complete(ctx, d.ID, "0xabc"); err != nil {
		t.Fatalf("repeat complete: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != feed.KindInsert || events[0].Status != "pending" {
		t.Fatalf("unexpected insert event: %+v", events[0])
	}
	if events[1].Kind != feed.KindUpdate || events[1].OldStatus != "pending" || events[1].Status != "completed" {
		t.Fatalf("unexpected update event: %+v", events[1])
	}
	if events[1].ActorID != "u1" {
		t.Fatalf("event missing donor: %+v", events[1])
	}
}

func TestService_HonorBoard(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	donate := func(donor, amount string, complete bool) {
		t.Helper()
		d, err := svc.Record(ctx, donor, "c1", amount, "BNB")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if complete {
			if _, err := svc.Complete(ctx, d.ID, ""); err != nil {
				t.Fatalf("complete: %v", err)
			}
		}
	}

	donate("u1", "1", true)
	donate("u1", "2", true)
	donate("u2", "10", true)
	donate("u3", "100", false) // pending, excluded

	board, err := svc.HonorBoard(ctx, 10)
	if err != nil {
		t.Fatalf("honor board: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(board), board)
	}
	if board[0].DonorID != "u2" || board[0].Total != "10" {
		t.Fatalf("unexpected leader: %+v", board[0])
	}
	if board[1].DonorID != "u1" || board[1].Total != "3" || board[1].Donations != 2 {
		t.Fatalf("unexpected runner-up: %+v", board[1])
	}
}

func TestReconciler_ExpiresStalePending(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, nil)
	ctx := context.Background()

	d, err := svc.Record(ctx, "u1", "c1", "1", "BNB")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, err := NewReconciler(svc, "@every 10ms", time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := rec.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got, err := store.GetDonation(ctx, d.ID)
	if err != nil {
		t.Fatalf("get donation: %v", err)
	}
	if got.Status != donation.StatusExpired {
		t.Fatalf("stale donation not expired: %+v", got)
	}
}

func TestReconciler_RejectsBadSchedule(t *testing.T) {
	if _, err := NewReconciler(New(memory.New(), nil, nil), "not a schedule", time.Hour, nil); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
