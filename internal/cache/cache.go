// Package cache provides the shared key/value cache used for dataset snapshots.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Client is a byte-valued cache with per-entry TTLs.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// CacheKey joins key parts with ":".
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// DatasetKey is the key under which a source's snapshot is stored.
func DatasetKey(sourceID string) string {
	return CacheKey("dataset", sourceID)
}

var (
	_ Client = (*RedisClient)(nil)
	_ Client = (*MemoryClient)(nil)
)
