// Package cache is a read-through result cache for history reads.
//
// Entries are keyed by operation and request parameters (including the
// requester) and expire after a fixed TTL. Writes never invalidate entries,
// so readers may see results up to one TTL old.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/cems/internal/metrics"
)

// Backend is the TTL key-value surface the cache needs.
type Backend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Cache memoizes JSON-encodable results.
type Cache struct {
	b   Backend
	ttl time.Duration
	log *zap.Logger
}

// New builds a cache; a nil backend or non-positive ttl disables caching.
func New(b Backend, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{b: b, ttl: ttl, log: log}
}

// Key joins an operation name and its parameters.
func Key(op string, parts ...any) string {
	var sb strings.Builder
	sb.WriteString("cache:")
	sb.WriteString(op)
	for _, p := range parts {
		sb.WriteByte(':')
		switch v := p.(type) {
		case string:
			sb.WriteString(v)
		case int64:
			sb.WriteString(strconv.FormatInt(v, 10))
		case interface{ String() string }:
			sb.WriteString(v.String())
		default:
			b, _ := json.Marshal(v)
			sb.Write(b)
		}
	}
	return sb.String()
}

// Through returns the cached value for key or calls load and caches its result.
// Errors from load are returned as-is and never cached. Backend failures only
// degrade to a miss.
func Through[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || c.b == nil || c.ttl <= 0 {
		return load(ctx)
	}
	if raw, ok, err := c.b.Get(ctx, key); err != nil {
		c.log.Warn("cache get", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return v, nil
		}
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := c.b.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("cache set", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
