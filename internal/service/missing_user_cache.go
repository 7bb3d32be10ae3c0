package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// MissingUserCache remembers ids that resolved to no user so token replays for
// deleted accounts do not hit the database on every request.
type MissingUserCache interface {
	Get(ctx context.Context, id string) (bool, error)
	Set(ctx context.Context, id string, ttl time.Duration) error
	Invalidate(ctx context.Context, id string) error
}

type NoopMissingUserCache struct{}

func NewNoopMissingUserCache() *NoopMissingUserCache { return &NoopMissingUserCache{} }

func (c *NoopMissingUserCache) Get(context.Context, string) (bool, error) { return false, nil }

func (c *NoopMissingUserCache) Set(context.Context, string, time.Duration) error { return nil }

func (c *NoopMissingUserCache) Invalidate(context.Context, string) error { return nil }

type InMemoryMissingUserCache struct {
	mu    sync.RWMutex
	store map[string]time.Time
}

func NewInMemoryMissingUserCache() *InMemoryMissingUserCache {
	return &InMemoryMissingUserCache{store: make(map[string]time.Time)}
}

func (c *InMemoryMissingUserCache) Get(_ context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	c.mu.RLock()
	expiresAt, ok := c.store[id]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		c.mu.Lock()
		delete(c.store, id)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *InMemoryMissingUserCache) Set(_ context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[id] = time.Now().UTC().Add(ttl)
	return nil
}

func (c *InMemoryMissingUserCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, id)
	return nil
}

func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
