// Package chat exposes chat reads: edit eligibility and the channel
// membership projection the UI renders.
package chat

import (
	"context"
	"time"

	chatdomain "github.com/Van103/fun-charity-sub001/internal/app/domain/chat"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// EditWindow is how long after posting a message its author may edit it.
const EditWindow = 30 * time.Minute

// CanEdit reports whether currentUserID may edit a message authored by
// authorID at createdAt. True only for the author, strictly inside the edit
// window; exactly at the boundary editing is no longer allowed. Total over
// all inputs.
func CanEdit(createdAt time.Time, authorID, currentUserID string) bool {
	if currentUserID == "" || currentUserID != authorID {
		return false
	}
	return time.Since(createdAt) < EditWindow
}

// Service serves chat reads over the backing store.
type Service struct {
	store storage.ChatStore
	log   *logger.Logger
}

// New constructs a chat service.
func New(store storage.ChatStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("chat")
	}
	return &Service{store: store, log: log}
}

// MemberChannels returns the channels the user belongs to, recomputed on
// every call by intersecting the membership rows with the channel list. The
// projection is never maintained incrementally; membership churn is low and
// a stale intersection is worse than the extra query.
func (s *Service) MemberChannels(ctx context.Context, userID string) ([]chatdomain.Channel, error) {
	if userID == "" {
		return nil, nil
	}

	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}

	member := make(map[string]struct{}, len(memberships))
	for _, m := range memberships {
		member[m.ChannelID] = struct{}{}
	}

	var result []chatdomain.Channel
	for _, ch := range channels {
		if _, ok := member[ch.ID]; ok {
			result = append(result, ch)
		}
	}
	return result, nil
}

// EditMessage applies an edit if the caller is still eligible. The same
// predicate the UI uses gates the write path, so a client cannot extend the
// window by racing the check.
func (s *Service) EditMessage(ctx context.Context, messageID, userID, body string) (chatdomain.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return chatdomain.Message{}, err
	}
	if !CanEdit(msg.CreatedAt, msg.AuthorID, userID) {
		return chatdomain.Message{}, ErrEditWindowClosed
	}
	msg.Body = body
	return s.store.UpdateMessage(ctx, msg)
}
