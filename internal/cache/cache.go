// Package cache provides the two-tier read cache used by the Template and
// Preference stores: an in-process L1 (patrickmn/go-cache) in front of a
// shared Redis L2, so a fleet of notifyhub instances amortizes repeated
// reads of the same template or preference row without every read round
// tripping to Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"

	"notifyhub/internal/logging"
)

// Layered is a read-through, write-invalidate two-tier cache. Values are
// JSON-encoded for the L2 hop; callers get back raw bytes and decode
// themselves, keeping this package ignorant of the Template/UserPreference
// shapes it caches.
type Layered struct {
	l1     *gocache.Cache
	l2     *redis.Client // nil disables L2 (single-instance / test mode)
	prefix string
}

// New builds a Layered cache. redisClient may be nil to run L1-only.
func New(redisClient *redis.Client, defaultTTL, cleanupInterval time.Duration, keyPrefix string) *Layered {
	if keyPrefix == "" {
		keyPrefix = "notifyhub:cache:"
	}
	return &Layered{
		l1:     gocache.New(defaultTTL, cleanupInterval),
		l2:     redisClient,
		prefix: keyPrefix,
	}
}

func (c *Layered) redisKey(key string) string { return c.prefix + key }

// Get looks in L1, then L2, decoding JSON into out. Reports false on a miss
// in both tiers.
func (c *Layered) Get(ctx context.Context, key string, out interface{}) bool {
	if raw, ok := c.l1.Get(key); ok {
		b, ok := raw.([]byte)
		if !ok {
			return false
		}
		if err := json.Unmarshal(b, out); err != nil {
			return false
		}
		return true
	}

	if c.l2 == nil {
		return false
	}
	b, err := c.l2.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		logging.Warn("cache: L2 get(%s) failed: %v", key, err)
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false
	}
	c.l1.SetDefault(key, b)
	return true
}

// Set writes through both tiers.
func (c *Layered) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		logging.Warn("cache: marshal(%s) failed: %v", key, err)
		return
	}
	c.l1.Set(key, b, ttl)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, c.redisKey(key), b, ttl).Err(); err != nil {
		logging.Warn("cache: L2 set(%s) failed: %v", key, err)
	}
}

// Invalidate removes key from both tiers, used whenever the backing row for
// key is written or deleted.
func (c *Layered) Invalidate(ctx context.Context, key string) {
	c.l1.Delete(key)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Del(ctx, c.redisKey(key)).Err(); err != nil {
		logging.Warn("cache: L2 invalidate(%s) failed: %v", key, err)
	}
}
