package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

// RedisUserCacheStore shares cached users between instances. Fields tagged
// json:"-" (password hash, one-time tokens) are never written to Redis.
type RedisUserCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisUserCacheStore(client redis.UniversalClient, prefix string) *RedisUserCacheStore {
	if prefix == "" {
		prefix = "user_cache"
	}
	return &RedisUserCacheStore{client: client, prefix: prefix}
}

func (s *RedisUserCacheStore) Get(ctx context.Context, id string) (*domain.User, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	raw, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

func (s *RedisUserCacheStore) Set(ctx context.Context, user *domain.User, ttl time.Duration) error {
	if s.client == nil || user == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.dataKey(user.ID), payload, ttl).Err()
}

func (s *RedisUserCacheStore) Invalidate(ctx context.Context, id string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.dataKey(id)).Err()
}

func (s *RedisUserCacheStore) dataKey(id string) string {
	return s.prefix + ":user:" + hashToken(id)
}
