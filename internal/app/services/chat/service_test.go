package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	chatdomain "github.com/Van103/fun-charity-sub001/internal/app/domain/chat"
	"github.com/Van103/fun-charity-sub001/internal/app/storage/memory"
)

func TestCanEdit(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		createdAt time.Time
		author    string
		current   string
		want      bool
	}{
		{"author inside window", now.Add(-time.Minute), "u1", "u1", true},
		{"author just inside window", now.Add(-EditWindow + time.Second), "u1", "u1", true},
		{"author exactly at boundary", now.Add(-EditWindow), "u1", "u1", false},
		{"author outside window", now.Add(-EditWindow - time.Minute), "u1", "u1", false},
		{"different user", now.Add(-time.Minute), "u1", "u2", false},
		{"anonymous", now.Add(-time.Minute), "u1", "", false},
		{"anonymous author and user", now.Add(-time.Minute), "", "", false},
		{"zero created-at", time.Time{}, "u1", "u1", false},
		{"future created-at", now.Add(time.Hour), "u1", "u1", true},
	}
	for _, tc := range cases {
		if got := CanEdit(tc.createdAt, tc.author, tc.current); got != tc.want {
			t.Fatalf("%s: CanEdit = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestService_MemberChannels(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	general, err := store.CreateChannel(ctx, chatdomain.Channel{Name: "general", Kind: "public"})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if _, err := store.CreateChannel(ctx, chatdomain.Channel{Name: "private", Kind: "private"}); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	helpers, err := store.CreateChannel(ctx, chatdomain.Channel{Name: "helpers", Kind: "public"})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	for _, channelID := range []string{general.ID, helpers.ID} {
		if err := store.AddMembership(ctx, chatdomain.Membership{UserID: "u1", ChannelID: channelID}); err != nil {
			t.Fatalf("add membership: %v", err)
		}
	}

	channels, err := svc.MemberChannels(ctx, "u1")
	if err != nil {
		t.Fatalf("member channels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}

	channels, err = svc.MemberChannels(ctx, "u2")
	if err != nil {
		t.Fatalf("member channels for stranger: %v", err)
	}
	if len(channels) != 0 {
		t.Fatalf("expected no channels for stranger, got %d", len(channels))
	}

	if _, err := svc.MemberChannels(ctx, ""); err != nil {
		t.Fatalf("empty identity should no-op: %v", err)
	}
}

func TestService_EditMessage(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	msg, err := store.CreateMessage(ctx, chatdomain.Message{ChannelID: "c1", AuthorID: "u1", Body: "hi"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	edited, err := svc.EditMessage(ctx, msg.ID, "u1", "hello")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Body != "hello" || edited.EditedAt.IsZero() {
		t.Fatalf("edit not applied: %+v", edited)
	}

	if _, err := svc.EditMessage(ctx, msg.ID, "u2", "hijack"); !errors.Is(err, ErrEditWindowClosed) {
		t.Fatalf("expected ErrEditWindowClosed for non-author, got %v", err)
	}

	stale, err := store.CreateMessage(ctx, chatdomain.Message{
		ChannelID: "c1",
		AuthorID:  "u1",
		Body:      "old",
		CreatedAt: time.Now().Add(-EditWindow),
	})
	if err != nil {
		t.Fatalf("create stale message: %v", err)
	}
	if _, err := svc.EditMessage(ctx, stale.ID, "u1", "too late"); !errors.Is(err, ErrEditWindowClosed) {
		t.Fatalf("expected ErrEditWindowClosed at boundary, got %v", err)
	}
}
