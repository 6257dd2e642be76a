// Package redisx implements the preference store on Redis. Preferences are
// tiny per-user settings (UI language, pending referral code) read on every
// app open, so they live in a hash per user rather than in Postgres.
package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Van103/fun-charity-sub001/internal/app/storage"
)

// PreferenceStore persists per-user preferences in Redis hashes keyed
// "pref:<user_id>".
type PreferenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ storage.PreferenceStore = (*PreferenceStore)(nil)

// Options configure the store.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an untouched user's preferences are retained.
	// Zero keeps them forever.
	TTL time.Duration
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*PreferenceStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &PreferenceStore{client: client, ttl: opts.TTL}, nil
}

// NewPreferenceStore wraps an existing client.
func NewPreferenceStore(client *redis.Client, ttl time.Duration) *PreferenceStore {
	return &PreferenceStore{client: client, ttl: ttl}
}

// Close releases the underlying client.
func (s *PreferenceStore) Close() error {
	return s.client.Close()
}

func prefKey(userID string) string { return "pref:" + userID }

// SetPreference stores one preference and refreshes the hash TTL.
func (s *PreferenceStore) SetPreference(ctx context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return fmt.Errorf("user id and key are required")
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, prefKey(userID), key, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, prefKey(userID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetPreference reads one preference. A missing key reads as the empty string
// without error.
func (s *PreferenceStore) GetPreference(ctx context.Context, userID, key string) (string, error) {
	value, err := s.client.HGet(ctx, prefKey(userID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
