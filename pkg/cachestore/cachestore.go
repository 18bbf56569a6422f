// Package cachestore implements an optional persisted backing for the
// Collector's statement cache (spec.md section 6's "persisted state"
// layout: {(iss,sub) -> (signed_string, fetched_at, exp)}), so a fetched
// statement survives an engine restart instead of forcing every branch of
// the tree to be re-fetched from cold. It is a second tier behind the
// Collector's in-memory TTL cache, not a replacement for it.
package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// entry is the persisted shape of one cached statement.
type entry struct {
	SignedString string    `json:"signed_string"`
	FetchedAt    time.Time `json:"fetched_at"`
	Exp          time.Time `json:"exp"`
}

// Store persists cached statements in Redis, keyed the same way the
// Collector keys its in-memory cache (iss + "\x00" + sub).
type Store struct {
	client *redis.Client
	prefix string
}

// New returns a Store backed by client. Every key is namespaced under
// prefix (e.g. "fedtrust:cache:") to share a Redis instance safely with
// other consumers.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Get returns the cached signed statement for key, if present and not yet
// expired. The TTL is enforced by Redis itself (Set stores it with EXPIRE),
// so a hit here is always still valid to the same clockSkew tolerance the
// Collector applied when it wrote the entry.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cachestore get %q: %w", key, err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", false, fmt.Errorf("cachestore decode %q: %w", key, err)
	}
	return e.SignedString, true, nil
}

// Set persists token under key with the given TTL, the same window the
// Collector computed for its in-memory entry.
func (s *Store) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	e := entry{SignedString: token, FetchedAt: now, Exp: now.Add(ttl)}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cachestore encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cachestore set %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
