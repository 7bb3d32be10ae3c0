package service

import (
	"context"
	"sync"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

// UserCacheStore holds read-path copies of user records for the guard.
type UserCacheStore interface {
	Get(ctx context.Context, id string) (*domain.User, bool, error)
	Set(ctx context.Context, user *domain.User, ttl time.Duration) error
	Invalidate(ctx context.Context, id string) error
}

type NoopUserCacheStore struct{}

func NewNoopUserCacheStore() *NoopUserCacheStore { return &NoopUserCacheStore{} }

func (s *NoopUserCacheStore) Get(context.Context, string) (*domain.User, bool, error) {
	return nil, false, nil
}

func (s *NoopUserCacheStore) Set(context.Context, *domain.User, time.Duration) error { return nil }

func (s *NoopUserCacheStore) Invalidate(context.Context, string) error { return nil }

type userCacheEntry struct {
	user      *domain.User
	expiresAt time.Time
}

type InMemoryUserCacheStore struct {
	mu   sync.RWMutex
	data map[string]userCacheEntry
}

func NewInMemoryUserCacheStore() *InMemoryUserCacheStore {
	return &InMemoryUserCacheStore{data: make(map[string]userCacheEntry)}
}

func (s *InMemoryUserCacheStore) Get(_ context.Context, id string) (*domain.User, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, id)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.user.Clone(), true, nil
}

func (s *InMemoryUserCacheStore) Set(_ context.Context, user *domain.User, ttl time.Duration) error {
	if user == nil || ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[user.ID] = userCacheEntry{user: user.Clone(), expiresAt: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *InMemoryUserCacheStore) Invalidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}
