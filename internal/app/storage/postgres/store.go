// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/chat"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/domain/friendship"
	"github.com/Van103/fun-charity-sub001/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.FriendshipStore = (*Store)(nil)
var _ storage.ChatStore = (*Store)(nil)
var _ storage.DonationStore = (*Store)(nil)
var _ storage.PreferenceStore = (*Store)(nil)

// Open connects to the database and returns a Store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- FriendshipStore --------------------------------------------------------

type friendshipRow struct {
	ID          string    `db:"id"`
	RequesterID string    `db:"requester_id"`
	RecipientID string    `db:"recipient_id"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
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

func (s *Store) CreateFriendship(ctx context.Context, f friendship.Friendship) (friendship.Friendship, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = friendship.StatusPending
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_friendships (id, requester_id, recipient_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.RequesterID, f.RecipientID, string(f.Status), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return friendship.Friendship{}, err
	}
	return f, nil
}

func (s *Store) UpdateFriendship(ctx context.Context, f friendship.Friendship) (friendship.Friendship, error) {
	f.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_friendships
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, f.ID, string(f.Status), f.UpdatedAt)
	if err != nil {
		return friendship.Friendship{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return friendship.Friendship{}, storage.ErrNotFound
	}
	return s.GetFriendship(ctx, f.ID)
}

func (s *Store) GetFriendship(ctx context.Context, id string) (friendship.Friendship, error) {
	var row friendshipRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, requester_id, recipient_id, status, created_at, updated_at
		FROM app_friendships
		WHERE id = $1
	`, id)
	if err != nil {
		return friendship.Friendship{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListFriendships(ctx context.Context, userID string) ([]friendship.Friendship, error) {
	var rows []friendshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, requester_id, recipient_id, status, created_at, updated_at
		FROM app_friendships
		WHERE requester_id = $1 OR recipient_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	result := make([]friendship.Friendship, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) CountPendingRequests(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM app_friendships
		WHERE recipient_id = $1 AND status = 'pending'
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// --- ChatStore --------------------------------------------------------------

type messageRow struct {
	ID        string       `db:"id"`
	ChannelID string       `db:"channel_id"`
	AuthorID  string       `db:"author_id"`
	Body      string       `db:"body"`
	CreatedAt time.Time    `db:"created_at"`
	EditedAt  sql.NullTime `db:"edited_at"`
}

func (r messageRow) toDomain() chat.Message {
	msg := chat.Message{
		ID:        r.ID,
		ChannelID: r.ChannelID,
		AuthorID:  r.AuthorID,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
	}
	if r.EditedAt.Valid {
		msg.EditedAt = r.EditedAt.Time
	}
	return msg
}

func (s *Store) CreateChannel(ctx context.Context, ch chat.Channel) (chat.Channel, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.Kind == "" {
		ch.Kind = "public"
	}
	ch.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_channels (id, name, kind, created_at)
		VALUES ($1, $2, $3, $4)
	`, ch.ID, ch.Name, ch.Kind, ch.CreatedAt)
	if err != nil {
		return chat.Channel{}, err
	}
	return ch, nil
}

func (s *Store) ListChannels(ctx context.Context) ([]chat.Channel, error) {
	var result []chat.Channel
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, name, kind, created_at AS createdat
		FROM app_channels
		ORDER BY created_at
	`)
	return result, err
}

func (s *Store) AddMembership(ctx context.Context, m chat.Membership) error {
	if m.Role == "" {
		m.Role = "member"
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_memberships (user_id, channel_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, channel_id) DO NOTHING
	`, m.UserID, m.ChannelID, m.Role, m.JoinedAt)
	return err
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]chat.Membership, error) {
	var result []chat.Membership
	err := s.db.SelectContext(ctx, &result, `
		SELECT user_id AS userid, channel_id AS channelid, role, joined_at AS joinedat
		FROM app_memberships
		WHERE user_id = $1
		ORDER BY joined_at
	`, userID)
	return result, err
}

func (s *Store) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_messages (id, channel_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ChannelID, msg.AuthorID, msg.Body, msg.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	msg.EditedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_messages
		SET body = $2, edited_at = $3
		WHERE id = $1
	`, msg.ID, msg.Body, msg.EditedAt)
	if err != nil {
		return chat.Message{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return chat.Message{}, storage.ErrNotFound
	}
	return s.GetMessage(ctx, msg.ID)
}

func (s *Store) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, channel_id, author_id, body, created_at, edited_at
		FROM app_messages
		WHERE id = $1
	`, id)
	if err != nil {
		return chat.Message{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListMessages(ctx context.Context, channelID string) ([]chat.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, channel_id, author_id, body, created_at, edited_at
		FROM app_messages
		WHERE channel_id = $1
		ORDER BY created_at
	`, channelID)
	if err != nil {
		return nil, err
	}
	result := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// --- DonationStore ----------------------------------------------------------

type donationRow struct {
	ID         string    `db:"id"`
	DonorID    string    `db:"donor_id"`
	CampaignID string    `db:"campaign_id"`
	Amount     string    `db:"amount"`
	Currency   string    `db:"currency"`
	Status     string    `db:"status"`
	TxHash     string    `db:"tx_hash"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r donationRow) toDomain() donation.Donation {
	return donation.Donation{
		ID:         r.ID,
		DonorID:    r.DonorID,
		CampaignID: r.CampaignID,
		Amount:     r.Amount,
		Currency:   r.Currency,
		Status:     donation.Status(r.Status),
		TxHash:     r.TxHash,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s *Store) CreateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = donation.StatusPending
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_donations (id, donor_id, campaign_id, amount, currency, status, tx_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.DonorID, d.CampaignID, d.Amount, d.Currency, string(d.Status), d.TxHash, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return donation.Donation{}, err
	}
	return d, nil
}

func (s *Store) UpdateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	d.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE app_donations
		SET status = $2, tx_hash = $3, updated_at = $4
		WHERE id = $1
	`, d.ID, string(d.Status), d.TxHash, d.UpdatedAt)
	if err != nil {
		return donation.Donation{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return donation.Donation{}, storage.ErrNotFound
	}
	return s.GetDonation(ctx, d.ID)
}

func (s *Store) GetDonation(ctx context.Context, id string) (donation.Donation, error) {
	var row donationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, donor_id, campaign_id, amount::text AS amount, currency, status, tx_hash, created_at, updated_at
		FROM app_donations
		WHERE id = $1
	`, id)
	if err != nil {
		return donation.Donation{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListDonations(ctx context.Context, donorID string) ([]donation.Donation, error) {
	var rows []donationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, donor_id, campaign_id, amount::text AS amount, currency, status, tx_hash, created_at, updated_at
		FROM app_donations
		WHERE donor_id = $1
		ORDER BY created_at
	`, donorID)
	if err != nil {
		return nil, err
	}
	result := make([]donation.Donation, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) ListDonationsByStatus(ctx context.Context, status donation.Status) ([]donation.Donation, error) {
	var rows []donationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, donor_id, campaign_id, amount::text AS amount, currency, status, tx_hash, created_at, updated_at
		FROM app_donations
		WHERE status = $1
		ORDER BY created_at
	`, string(status))
	if err != nil {
		return nil, err
	}
	result := make([]donation.Donation, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) TopDonors(ctx context.Context, limit int) ([]donation.HonorBoardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT donor_id, SUM(amount)::text AS total, COUNT(*) AS donations
		FROM app_donations
		WHERE status = 'completed'
		GROUP BY donor_id
		ORDER BY SUM(amount) DESC, donor_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []donation.HonorBoardEntry
	for rows.Next() {
		var entry donation.HonorBoardEntry
		if err := rows.Scan(&entry.DonorID, &entry.Total, &entry.Donations); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// --- PreferenceStore --------------------------------------------------------

func (s *Store) SetPreference(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_preferences (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, userID, key, value, time.Now().UTC())
	return err
}

func (s *Store) GetPreference(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `
		SELECT value FROM app_preferences WHERE user_id = $1 AND key = $2
	`, userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
