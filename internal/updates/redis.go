package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairpm/fair-go/internal/config"
)

// RedisStore keeps update records in Redis so every process of a site sees
// the same results and backoff windows. Records are stored as JSON with a
// TTL equal to their remaining lifetime.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: keyPrefix}
}

// NewRedisClient creates a client from configuration and pings it.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}

func (s *RedisStore) key(did string) string {
	return s.prefix + "update:" + did
}

// Get returns the record for did, or ErrRecordNotFound.
func (s *RedisStore) Get(ctx context.Context, did string) (*Record, error) {
	data, err := s.rdb.Get(ctx, s.key(did)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read update record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode update record: %w", err)
	}
	if rec.Expired(time.Now()) {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

// Put stores rec until its ExpiresAt. Already expired records are not
// written.
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode update record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(rec.DID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write update record: %w", err)
	}
	return nil
}

// Delete removes the record for did.
func (s *RedisStore) Delete(ctx context.Context, did string) error {
	if err := s.rdb.Del(ctx, s.key(did)).Err(); err != nil {
		return fmt.Errorf("failed to delete update record: %w", err)
	}
	return nil
}
