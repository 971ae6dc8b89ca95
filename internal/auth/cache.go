package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:user:"

// SessionCache is a best-effort store of account snapshots keyed by email.
// Implementations never fail: any backend error is reported as a miss.
type SessionCache interface {
	Get(ctx context.Context, email string) (*Account, bool)
	Put(ctx context.Context, email string, account *Account, ttl time.Duration)
	Invalidate(ctx context.Context, email string)
}

// CacheObserver records cache outcomes. observability.Metrics satisfies it.
type CacheObserver interface {
	ObserveCache(cache, result string)
}

// RedisSessionCache keeps JSON account snapshots in Redis.
type RedisSessionCache struct {
	client   *redis.Client
	logger   *slog.Logger
	observer CacheObserver
}

// NewRedisSessionCache builds a cache around client. A nil client yields a cache
// that always misses.
func NewRedisSessionCache(client *redis.Client, logger *slog.Logger, observer CacheObserver) *RedisSessionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSessionCache{client: client, logger: logger, observer: observer}
}

// Get returns the cached snapshot for email.
func (c *RedisSessionCache) Get(ctx context.Context, email string) (*Account, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key := sessionKey(email)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.observe("miss")
			return nil, false
		}
		c.logger.Warn("session cache get failed", slog.String("key", key), slog.Any("error", err))
		c.observe("error")
		return nil, false
	}
	var account Account
	if err := json.Unmarshal(raw, &account); err != nil {
		c.logger.Warn("session cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		c.observe("error")
		c.Invalidate(ctx, email)
		return nil, false
	}
	c.observe("hit")
	return &account, true
}

// Put stores account under email for ttl.
func (c *RedisSessionCache) Put(ctx context.Context, email string, account *Account, ttl time.Duration) {
	if c == nil || c.client == nil || account == nil {
		return
	}
	payload, err := json.Marshal(account)
	if err != nil {
		c.logger.Warn("session cache encode failed", slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, sessionKey(email), payload, ttl).Err(); err != nil {
		c.logger.Warn("session cache put failed", slog.String("key", sessionKey(email)), slog.Any("error", err))
		c.observe("error")
	}
}

// Invalidate drops the snapshot for email.
func (c *RedisSessionCache) Invalidate(ctx context.Context, email string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, sessionKey(email)).Err(); err != nil {
		c.logger.Warn("session cache invalidate failed", slog.String("key", sessionKey(email)), slog.Any("error", err))
		c.observe("error")
	}
}

func (c *RedisSessionCache) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveCache("session", result)
	}
}

func sessionKey(email string) string {
	return sessionKeyPrefix + email
}
