// Package cache adds a Redis read-aside layer on top of a TokenRegistry.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pairbond/go-push-service/pkg/push"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedRegistry is a decorator that adds read-aside caching of per-user
// token lists to any TokenRegistry. AllTokens always passes through: a
// broadcast must see the real registry, and the snapshot is too large to be
// worth caching.
type CachedRegistry struct {
	realRegistry push.TokenRegistry
	cache        CacheClient
	ttl          time.Duration
}

// NewCachedRegistry creates the decorator.
func NewCachedRegistry(realRegistry push.TokenRegistry, cache CacheClient, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		realRegistry: realRegistry,
		cache:        cache,
		ttl:          ttl,
	}
}

// --- READ PATHS ---

func (r *CachedRegistry) TokensForUser(ctx context.Context, userID string) ([]push.DeviceToken, error) {
	key := r.cacheKey(userID)

	var cached []push.DeviceToken
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := r.realRegistry.TokensForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimisation, not a transaction. If Redis is down we
	// just keep serving from the real registry.
	_ = r.cache.Set(ctx, key, fresh, r.ttl)

	return fresh, nil
}

func (r *CachedRegistry) AllTokens(ctx context.Context) ([]push.DeviceToken, error) {
	return r.realRegistry.AllTokens(ctx)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (r *CachedRegistry) Register(ctx context.Context, userID, rawToken string, platform push.Platform) (string, error) {
	id, err := r.realRegistry.Register(ctx, userID, rawToken, platform)
	if err != nil {
		return "", err
	}
	// A reassigning upsert can leave the previous owner's cached list stale
	// until TTL; the write path only knows the new owner. The TTL bounds
	// that window.
	return id, r.invalidate(ctx, userID)
}

// Unregister invalidates even though the DB write already succeeded: a
// "disable notifications" action has to stop deliveries immediately, not at
// TTL expiry.
func (r *CachedRegistry) Unregister(ctx context.Context, rawToken, ownerUserID string) (int, error) {
	deleted, err := r.realRegistry.Unregister(ctx, rawToken, ownerUserID)
	if err != nil {
		return 0, err
	}
	if ownerUserID != "" {
		return deleted, r.invalidate(ctx, ownerUserID)
	}
	return deleted, nil
}

// --- Helpers ---

func (r *CachedRegistry) invalidate(ctx context.Context, userID string) error {
	return r.cache.Del(ctx, r.cacheKey(userID))
}

func (r *CachedRegistry) cacheKey(userID string) string {
	return fmt.Sprintf("push:tokens:%s", userID)
}
