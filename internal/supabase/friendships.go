package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// FriendshipStore persists friend requests through the PostgREST API, for
// deployments where the server talks to Supabase instead of Postgres
// directly.
type FriendshipStore struct {
	client  *Client
	table   string
	countFn string
	log     *logger.Logger
}

var _ storage.FriendshipStore = (*FriendshipStore)(nil)

// FriendshipStoreOption customises the store.
type FriendshipStoreOption func(*FriendshipStore)

// WithFriendshipTable overrides the table name (default "friendships").
func WithFriendshipTable(table string) FriendshipStoreOption {
	return func(s *FriendshipStore) { s.table = table }
}

// WithCountRPC counts pending requests through a Postgres function taking
// {"recipient_id": ...} and returning a scalar, instead of a filtered HEAD
// count.
func WithCountRPC(function string) FriendshipStoreOption {
	return func(s *FriendshipStore) { s.countFn = function }
}

// NewFriendshipStore creates a REST-backed friendship store.
func NewFriendshipStore(client *Client, log *logger.Logger, opts ...FriendshipStoreOption) (*FriendshipStore, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if log == nil {
		log = logger.NewDefault("supabase-friendships")
	}
	s := &FriendshipStore{
		client: client,
		table:  "friendships",
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type friendshipRow struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	RecipientID string    `json:"recipient_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r friendshipRow) toDomain() friendship.Friendship {
	return friendship.Friendship{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		RecipientID: r.RecipientID,
		Status:      friendship.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toRow(f friendship.Friendship) friendshipRow {
	return friendshipRow{
		ID:          f.ID,
		RequesterID: f.RequesterID,
		RecipientID: f.RecipientID,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// CreateFriendship inserts a friend request, defaulting id, status and
// timestamps as the memory and postgres stores do.
func (s *FriendshipStore) CreateFriendship(ctx context.Context, f friendship.Friendship) (friendship.Friendship, error) {
	now := time.Now().UTC()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = friendship.StatusPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	body, err := json.Marshal(toRow(f))
	if err != nil {
		return friendship.Friendship{}, fmt.Errorf("marshal friendship: %w", err)
	}
	resp, err := s.client.Insert(ctx, s.table, body)
	if err != nil {
		return friendship.Friendship{}, err
	}
	rows, err := decodeRows(resp.Body)
	if err != nil {
		return friendship.Friendship{}, err
	}
	if len(rows) == 0 {
		return friendship.Friendship{}, fmt.Errorf("insert returned no rows")
	}
	return rows[0].toDomain(), nil
}

// UpdateFriendship patches the row by id. A zero-row match maps to
// storage.ErrNotFound.
func (s *FriendshipStore) UpdateFriendship(ctx context.Context, f friendship.Friendship) (friendship.Friendship, error) {
	if f.ID == "" {
		return friendship.Friendship{}, fmt.Errorf("friendship id is required")
	}
	patch := map[string]string{
		"status":     string(f.Status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return friendship.Friendship{}, fmt.Errorf("marshal patch: %w", err)
	}
	resp, err := s.client.Update(ctx, s.table, "id=eq."+url.QueryEscape(f.ID), body)
	if err != nil {
		return friendship.Friendship{}, err
	}
	rows, err := decodeRows(resp.Body)
	if err != nil {
		return friendship.Friendship{}, err
	}
	if len(rows) == 0 {
		return friendship.Friendship{}, storage.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *FriendshipStore) GetFriendship(ctx context.Context, id string) (friendship.Friendship, error) {
	if id == "" {
		return friendship.Friendship{}, fmt.Errorf("friendship id is required")
	}
	resp, err := s.client.Select(ctx, s.table, "id=eq."+url.QueryEscape(id)+"&limit=1")
	if err != nil {
		return friendship.Friendship{}, err
	}
	rows, err := decodeRows(resp.Body)
	if err != nil {
		return friendship.Friendship{}, err
	}
	if len(rows) == 0 {
		return friendship.Friendship{}, storage.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// ListFriendships returns requests where the user is either side.
func (s *FriendshipStore) ListFriendships(ctx context.Context, userID string) ([]friendship.Friendship, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	escaped := url.QueryEscape(userID)
	query := "or=(requester_id.eq." + escaped + ",recipient_id.eq." + escaped + ")&order=created_at.desc"
	resp, err := s.client.Select(ctx, s.table, query)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(resp.Body)
	if err != nil {
		return nil, err
	}
	result := make([]friendship.Friendship, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// CountPendingRequests counts rows targeting the recipient that are still
// pending, either through a filtered exact count or the configured RPC.
func (s *FriendshipStore) CountPendingRequests(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, fmt.Errorf("recipient id is required")
	}
	if s.countFn != "" {
		resp, err := s.client.RPC(ctx, s.countFn, map[string]string{"recipient_id": recipientID})
		if err != nil {
			return 0, err
		}
		var n int
		if err := json.Unmarshal(resp.Body, &n); err != nil {
			return 0, fmt.Errorf("decode %s result: %w", s.countFn, err)
		}
		return n, nil
	}
	query := "recipient_id=eq." + url.QueryEscape(recipientID) + "&status=eq." + string(friendship.StatusPending)
	return s.client.Count(ctx, s.table, query)
}

func decodeRows(body []byte) ([]friendshipRow, error) {
	var rows []friendshipRow
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}
