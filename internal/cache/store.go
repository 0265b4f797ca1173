// Package cache provides the typed cache-aside store over Redis. All
// operations are best-effort: the relational store remains the source of
// truth, so cache failures degrade to misses and no-ops rather than errors.
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"record-gateway/internal/common/logging"
	"record-gateway/internal/redis"
)

// Stats reports process-local hit/miss accounting plus backend key and
// memory usage. Counters are reset by Flush.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	KeyCount    int     `json:"key_count"`
	MemoryBytes int64   `json:"memory_bytes,omitempty"`
}

// Store is the cache contract consumed by the repository layer
type Store interface {
	Enabled() bool
	// GetJSON deserializes the cached value into dest, then runs any checks
	// against the populated dest. Wrapper errors, deserialization failures
	// and failed checks are all treated as a miss, never an error.
	GetJSON(ctx context.Context, key string, dest interface{}, checks ...func() bool) bool
	// Set stores a JSON-serialized value with a TTL, best-effort
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	// Delete removes a key, best-effort
	Delete(ctx context.Context, key string)
	// Flush removes every key under this store's prefix and resets counters
	Flush(ctx context.Context)
	// Keys lists cached keys matching pattern, up to limit
	Keys(ctx context.Context, pattern string, limit int) []string
	Stats(ctx context.Context) Stats
}

// RedisStore implements Store over the shared Redis client
type RedisStore struct {
	client *redis.Client
	prefix string
	logger logging.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore creates a cache store namespaced under prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logging.GetGlobalLogger().WithFields(logging.String("component", "cache")),
	}
}

// Enabled reports whether the backing Redis client is configured
func (s *RedisStore) Enabled() bool {
	return s.client.Enabled()
}

// GetJSON retrieves and deserializes a cached value. Every failure path
// counts as a miss, including an entry that deserializes but fails a check.
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest interface{}, checks ...func() bool) bool {
	if !s.client.Ready() {
		s.misses.Add(1)
		return false
	}

	val, found, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		s.logger.Warn("Cache get failed, treating as miss",
			logging.String("key", key), logging.Err(err))
		s.misses.Add(1)
		return false
	}
	if !found {
		s.misses.Add(1)
		return false
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		s.logger.Warn("Cache entry failed to deserialize, treating as miss",
			logging.String("key", key), logging.Err(err))
		s.misses.Add(1)
		return false
	}

	for _, check := range checks {
		if !check() {
			s.logger.Warn("Cache entry failed validation, treating as miss",
				logging.String("key", key))
			s.misses.Add(1)
			return false
		}
	}

	s.hits.Add(1)
	return true
}

// Set serializes and stores a value. Failures are logged and swallowed:
// population is an optimization, not a correctness requirement.
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.client.Ready() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Cache set skipped, value not serializable",
			logging.String("key", key), logging.Err(err))
		return
	}

	if err := s.client.Set(ctx, s.prefix+key, data, ttl); err != nil {
		s.logger.Warn("Cache set failed",
			logging.String("key", key), logging.Err(err))
	}
}

// Delete removes a key. Failures are logged and swallowed.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if !s.client.Ready() {
		return
	}

	if err := s.client.Delete(ctx, s.prefix+key); err != nil {
		s.logger.Warn("Cache invalidation failed",
			logging.String("key", key), logging.Err(err))
	}
}

// Flush clears the store's keyspace and resets hit/miss counters
func (s *RedisStore) Flush(ctx context.Context) {
	s.hits.Store(0)
	s.misses.Store(0)

	if !s.client.Ready() {
		return
	}

	if err := s.client.FlushPrefix(ctx, s.prefix); err != nil {
		s.logger.Warn("Cache flush failed", logging.Err(err))
	}
}

// Keys lists cached keys matching pattern (without the store prefix applied
// to the pattern's namespace)
func (s *RedisStore) Keys(ctx context.Context, pattern string, limit int) []string {
	if !s.client.Ready() {
		return nil
	}

	keys, err := s.client.Keys(ctx, s.prefix+pattern, limit)
	if err != nil {
		s.logger.Warn("Cache key scan failed", logging.Err(err))
		return nil
	}
	return keys
}

// Stats returns current hit/miss accounting and backend usage
func (s *RedisStore) Stats(ctx context.Context) Stats {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	if s.client.Ready() {
		if keys, err := s.client.Keys(ctx, s.prefix+"*", 0); err == nil {
			stats.KeyCount = len(keys)
		}
		stats.MemoryBytes = s.client.MemoryBytes(ctx)
	}

	return stats
}

// DisabledStore is the constructed-once no-op variant used when Redis is not
// configured, so call sites need no enabled checks.
type DisabledStore struct{}

// NewDisabledStore creates a Store whose operations all short-circuit
func NewDisabledStore() *DisabledStore { return &DisabledStore{} }

func (*DisabledStore) Enabled() bool { return false }

func (*DisabledStore) GetJSON(ctx context.Context, key string, dest interface{}, checks ...func() bool) bool {
	return false
}

func (*DisabledStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {}

func (*DisabledStore) Delete(ctx context.Context, key string) {}

func (*DisabledStore) Flush(ctx context.Context) {}

func (*DisabledStore) Keys(ctx context.Context, pattern string, limit int) []string { return nil }

func (*DisabledStore) Stats(ctx context.Context) Stats { return Stats{} }
