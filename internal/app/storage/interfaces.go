package storage

import (
	"context"
	"errors"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/chat"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// FriendshipStore persists friend requests.
type FriendshipStore interface {
	CreateFriendship(ctx context.Context, f friendship.Friendship) (friendship.Friendship, error)
	UpdateFriendship(ctx context.Context, f friendship.Friendship) (friendship.Friendship, error)
	GetFriendship(ctx context.Context, id string) (friendship.Friendship, error)
	ListFriendships(ctx context.Context, userID string) ([]friendship.Friendship, error)
	CountPendingRequests(ctx context.Context, recipientID string) (int, error)
}

// ChatStore persists channels, memberships and messages.
type ChatStore interface {
	CreateChannel(ctx context.Context, ch chat.Channel) (chat.Channel, error)
	ListChannels(ctx context.Context) ([]chat.Channel, error)

	AddMembership(ctx context.Context, m chat.Membership) error
	ListMemberships(ctx context.Context, userID string) ([]chat.Membership, error)

	CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	UpdateMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	GetMessage(ctx context.Context, id string) (chat.Message, error)
	ListMessages(ctx context.Context, channelID string) ([]chat.Message, error)
}

// DonationStore persists donations and serves the honor board ranking.
type DonationStore interface {
	CreateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error)
	UpdateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error)
	GetDonation(ctx context.Context, id string) (donation.Donation, error)
	ListDonations(ctx context.Context, donorID string) ([]donation.Donation, error)
	ListDonationsByStatus(ctx context.Context, status donation.Status) ([]donation.Donation, error)
	TopDonors(ctx context.Context, limit int) ([]donation.HonorBoardEntry, error)
}

// PreferenceStore persists small per-user key-value settings such as the
// selected UI language and a pending referral code. A missing key reads as
// the empty string without error.
type PreferenceStore interface {
	SetPreference(ctx context.Context, userID, key, value string) error
	GetPreference(ctx context.Context, userID, key string) (string, error)
}
