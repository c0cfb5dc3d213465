// Package redis keeps in-progress intake conversations in Redis so any
// replica can serve the next request.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// DefaultPrefix namespaces draft keys.
const DefaultPrefix = "claims:draft:"

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DraftStore implements ports.DraftStore on Redis with native key expiry.
type DraftStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ ports.DraftStore = (*DraftStore)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*DraftStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb goredis.UniversalClient, prefix string) *DraftStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DraftStore{rdb: rdb, prefix: prefix}
}

func (s *DraftStore) key(id string) string {
	return s.prefix + id
}

func (s *DraftStore) SaveDraft(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *DraftStore) LoadDraft(ctx context.Context, id string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("draft %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return data, nil
}

func (s *DraftStore) DeleteDraft(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *DraftStore) Close() error {
	return s.rdb.Close()
}
