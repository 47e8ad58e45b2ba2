// Package chat implements the conversation membership and messaging rules of
// the service. All domain invariants are enforced here, on top of the
// backend-neutral store.DataStore interface, so every storage plugin behaves
// identically.
package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/registry/cache"
	"github.com/loqui/chat-service/internal/registry/store"
)

// Service is the domain engine. It is stateless apart from its store and
// cache handles; each public method is a single request-scoped operation.
type Service struct {
	store    store.DataStore
	cache    cache.UserCache
	cacheTTL time.Duration
}

// NewService creates the engine over the given store. cache may be nil.
func NewService(ds store.DataStore, uc cache.UserCache, cacheTTL time.Duration) *Service {
	return &Service{store: ds, cache: uc, cacheTTL: cacheTTL}
}

// getUser fetches a user through the profile cache when one is configured.
func (s *Service) getUser(ctx context.Context, userID string) (*model.User, error) {
	if s.cache != nil && s.cache.Available() {
		if u, err := s.cache.Get(ctx, userID); err == nil && u != nil {
			return u, nil
		}
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.cache.Available() {
		if err := s.cache.Set(ctx, u, s.cacheTTL); err != nil {
			log.Debug("user cache set failed", "userId", userID, "err", err)
		}
	}
	return u, nil
}

// invalidateUser drops a user's cache entry after a profile write.
func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.cache == nil || !s.cache.Available() {
		return
	}
	if err := s.cache.Remove(ctx, userID); err != nil {
		log.Debug("user cache invalidate failed", "userId", userID, "err", err)
	}
}
