package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedKV wraps a primary KV with a Redis read-through cache. Writes go to
// the primary store and invalidate the cache; reads check Redis first then
// fall back to the primary.
type CachedKV struct {
	primary KV
	rdb     redis.Cmdable
	ttl     time.Duration
	prefix  string
}

// NewCachedKV creates a cached wrapper around a primary store.
func NewCachedKV(primary KV, rdb redis.Cmdable, ttl time.Duration) *CachedKV {
	return &CachedKV{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		prefix:  "tactician:",
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedKV) Set(ctx context.Context, key, value string) error {
	if err := s.primary.Set(ctx, key, value); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.invalidate(ctx, key)
	return nil
}

func (s *CachedKV) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.cacheKey(key)).Result()
	if err == nil {
		return v, nil
	}

	// Cache miss or Redis unavailable: read from primary.
	v, err = s.primary.Get(ctx, key)
	if err != nil {
		return "", err
	}
	s.rdb.Set(ctx, s.cacheKey(key), v, s.ttl)
	return v, nil
}

// invalidate drops the cached copy. The primary write already succeeded, so
// a Redis failure is logged and the entry ages out by TTL.
func (s *CachedKV) invalidate(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, s.cacheKey(key)).Err(); err != nil {
		slog.Warn("cache invalidation failed", "key", key, "err", err)
	}
}

func (s *CachedKV) cacheKey(key string) string { return s.prefix + key }
