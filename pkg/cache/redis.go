package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTierMiss indicates the requested key was not found in the
// persistent tier.
var ErrTierMiss = errors.New("cache tier miss")

// RedisTier persists artifact entries in Redis so a restart does not lose
// the derived caches. It is the second tier behind the in-process LRU.
type RedisTier struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisTier creates a persistent tier backed by the given client.
// Entries expire after ttl to bound the keyspace independently of the
// daily cleanup job.
func NewRedisTier(redisClient *redis.Client, ttl time.Duration) *RedisTier {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisTier{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves an entry by key. Returns ErrTierMiss when absent.
func (t *RedisTier) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := t.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTierMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}

	cacheHits.WithLabelValues(string(key.Kind), "redis").Inc()
	return &entry, nil
}

// Set stores an entry with the tier TTL.
func (t *RedisTier) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := t.redis.Set(ctx, key.String(), data, t.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry.
func (t *RedisTier) Delete(ctx context.Context, key Key) error {
	if err := t.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
