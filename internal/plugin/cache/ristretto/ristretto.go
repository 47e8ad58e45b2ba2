package ristretto

import (
	"context"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/model"
	registrycache "github.com/loqui/chat-service/internal/registry/cache"
	"github.com/loqui/chat-service/internal/security"
)

const defaultTTL = 5 * time.Minute

// In-process cache. Useful for single-instance deployments where running
// Redis would be overkill; entries are not shared across replicas.
func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "ristretto",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UserCache, error) {
	ttl := defaultTTL
	if cfg := config.FromContext(ctx); cfg != nil && cfg.CacheUserTTL > 0 {
		ttl = cfg.CacheUserTTL
	}
	inner, err := ristretto.NewCache(&ristretto.Config[string, *model.User]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoUserCache{cache: inner, ttl: ttl}, nil
}

type ristrettoUserCache struct {
	cache *ristretto.Cache[string, *model.User]
	ttl   time.Duration
}

func (c *ristrettoUserCache) Available() bool {
	return true
}

func (c *ristrettoUserCache) Get(_ context.Context, userID string) (*model.User, error) {
	user, ok := c.cache.Get(userID)
	if !ok {
		security.CacheMissesTotal.Inc()
		return nil, nil
	}
	security.CacheHitsTotal.Inc()
	return user, nil
}

func (c *ristrettoUserCache) Set(_ context.Context, user *model.User, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(user.ID, user, 1, ttl)
	return nil
}

func (c *ristrettoUserCache) Remove(_ context.Context, userID string) error {
	c.cache.Del(userID)
	return nil
}

var _ registrycache.UserCache = (*ristrettoUserCache)(nil)
