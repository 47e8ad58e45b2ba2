package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/model"
	registrycache "github.com/loqui/chat-service/internal/registry/cache"
	"github.com/loqui/chat-service/internal/security"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UserCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHAT_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.CacheUserTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates a UserCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.UserCache, error) {
	return LoadFromURLWithTTL(ctx, redisURL, defaultTTL)
}

// LoadFromURLWithTTL creates a cache with an explicit user-record TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.UserCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisUserCache{client: client, ttl: ttl}, nil
}

type redisUserCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func userKey(userID string) string {
	return "chat-user:" + userID
}

func (c *redisUserCache) Available() bool {
	return true
}

func (c *redisUserCache) Get(ctx context.Context, userID string) (*model.User, error) {
	data, err := c.client.Get(ctx, userKey(userID)).Bytes()
	if err == goredis.Nil {
		security.CacheMissesTotal.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	security.CacheHitsTotal.Inc()
	return &user, nil
}

func (c *redisUserCache) Set(ctx context.Context, user *model.User, ttl time.Duration) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, userKey(user.ID), data, ttl).Err()
}

func (c *redisUserCache) Remove(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userKey(userID)).Err()
}

var _ registrycache.UserCache = (*redisUserCache)(nil)
