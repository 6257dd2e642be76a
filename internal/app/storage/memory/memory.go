package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/chat"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	friendships map[string]friendship.Friendship
	channels    map[string]chat.Channel
	memberships map[string][]chat.Membership
	messages    map[string]chat.Message
	donations   map[string]donation.Donation
	preferences map[string]string
}

var _ storage.FriendshipStore = (*Store)(nil)
var _ storage.ChatStore = (*Store)(nil)
var _ storage.DonationStore = (*Store)(nil)
var _ storage.PreferenceStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		friendships: make(map[string]friendship.Friendship),
		channels:    make(map[string]chat.Channel),
		memberships: make(map[string][]chat.Membership),
		messages:    make(map[string]chat.Message),
		donations:   make(map[string]donation.Donation),
		preferences: make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// FriendshipStore implementation ----------------------------------------------

func (s *Store) CreateFriendship(_ context.Context, f friendship.Friendship) (friendship.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = s.nextIDLocked()
	} else if _, exists := s.friendships[f.ID]; exists {
		return friendship.Friendship{}, fmt.Errorf("friendship %s already exists", f.ID)
	}
	if f.Status == "" {
		f.Status = friendship.StatusPending
	}

	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	s.friendships[f.ID] = f
	return f, nil
}

func (s *Store) UpdateFriendship(_ context.Context, f friendship.Friendship) (friendship.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.friendships[f.ID]
	if !ok {
		return friendship.Friendship{}, storage.ErrNotFound
	}
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	s.friendships[f.ID] = f
	return f, nil
}

func (s *Store) GetFriendship(_ context.Context, id string) (friendship.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.friendships[id]
	if !ok {
		return friendship.Friendship{}, storage.ErrNotFound
	}
	return f, nil
}

func (s *Store) ListFriendships(_ context.Context, userID string) ([]friendship.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []friendship.Friendship
	for _, f := range s.friendships {
		if f.RequesterID == userID || f.RecipientID == userID {
			result = append(result, f)
		}
	}
	return result, nil
}

func (s *Store) CountPendingRequests(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, f := range s.friendships {
		if f.RecipientID == recipientID && f.Status == friendship.StatusPending {
			count++
		}
	}
	return count, nil
}

// ChatStore implementation -----------------------------------------------------

func (s *Store) CreateChannel(_ context.Context, ch chat.Channel) (chat.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.ID == "" {
		ch.ID = s.nextIDLocked()
	} else if _, exists := s.channels[ch.ID]; exists {
		return chat.Channel{}, fmt.Errorf("channel %s already exists", ch.ID)
	}
	ch.CreatedAt = time.Now().UTC()
	s.channels[ch.ID] = ch
	return ch, nil
}

func (s *Store) ListChannels(_ context.Context) ([]chat.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]chat.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		result = append(result, ch)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) AddMembership(_ context.Context, m chat.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[m.ChannelID]; !ok {
		return storage.ErrNotFound
	}
	for _, existing := range s.memberships[m.UserID] {
		if existing.ChannelID == m.ChannelID {
			return nil
		}
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	s.memberships[m.UserID] = append(s.memberships[m.UserID], m)
	return nil
}

func (s *Store) ListMemberships(_ context.Context, userID string) ([]chat.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]chat.Membership, len(s.memberships[userID]))
	copy(result, s.memberships[userID])
	return result, nil
}

func (s *Store) CreateMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = s.nextIDLocked()
	} else if _, exists := s.messages[msg.ID]; exists {
		return chat.Message{}, fmt.Errorf("message %s already exists", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) UpdateMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.messages[msg.ID]
	if !ok {
		return chat.Message{}, storage.ErrNotFound
	}
	msg.CreatedAt = original.CreatedAt
	msg.EditedAt = time.Now().UTC()
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return chat.Message{}, storage.ErrNotFound
	}
	return msg, nil
}

func (s *Store) ListMessages(_ context.Context, channelID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []chat.Message
	for _, msg := range s.messages {
		if msg.ChannelID == channelID {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// DonationStore implementation -------------------------------------------------

func (s *Store) CreateDonation(_ context.Context, d donation.Donation) (donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	} else if _, exists := s.donations[d.ID]; exists {
		return donation.Donation{}, fmt.Errorf("donation %s already exists", d.ID)
	}
	if d.Status == "" {
		d.Status = donation.StatusPending
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.donations[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDonation(_ context.Context, d donation.Donation) (donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.donations[d.ID]
	if !ok {
		return donation.Donation{}, storage.ErrNotFound
	}
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.donations[d.ID] = d
	return d, nil
}

func (s *Store) GetDonation(_ context.Context, id string) (donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donations[id]
	if !ok {
		return donation.Donation{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListDonations(_ context.Context, donorID string) ([]donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []donation.Donation
	for _, d := range s.donations {
		if d.DonorID == donorID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *Store) ListDonationsByStatus(_ context.Context, status donation.Status) ([]donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []donation.Donation
	for _, d := range s.donations {
		if d.Status == status {
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *Store) TopDonors(_ context.Context, limit int) ([]donation.HonorBoardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*big.Float)
	counts := make(map[string]int)
	for _, d := range s.donations {
		if d.Status != donation.StatusCompleted {
			continue
		}
		amount, ok := new(big.Float).SetString(d.Amount)
		if !ok {
			continue
		}
		if totals[d.DonorID] == nil {
			totals[d.DonorID] = new(big.Float)
		}
		totals[d.DonorID].Add(totals[d.DonorID], amount)
		counts[d.DonorID]++
	}

	entries := make([]donation.HonorBoardEntry, 0, len(totals))
	for donor, total := range totals {
		entries = append(entries, donation.HonorBoardEntry{
			DonorID:   donor,
			Total:     total.Text('f', -1),
			Donations: counts[donor],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, _ := new(big.Float).SetString(entries[i].Total)
		b, _ := new(big.Float).SetString(entries[j].Total)
		if cmp := a.Cmp(b); cmp != 0 {
			return cmp > 0
		}
		return entries[i].DonorID < entries[j].DonorID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// PreferenceStore implementation -----------------------------------------------

func (s *Store) SetPreference(_ context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return fmt.Errorf("user id and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[userID+"/"+key] = value
	return nil
}

func (s *Store) GetPreference(_ context.Context, userID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferences[userID+"/"+key], nil
}
