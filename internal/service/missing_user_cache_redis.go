package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisMissingUserCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisMissingUserCache(client redis.UniversalClient, prefix string) *RedisMissingUserCache {
	if prefix == "" {
		prefix = "missing_user"
	}
	return &RedisMissingUserCache{client: client, prefix: prefix}
}

func (c *RedisMissingUserCache) Get(ctx context.Context, id string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.dataKey(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisMissingUserCache) Set(ctx context.Context, id string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.dataKey(id), "1", ttl).Err()
}

func (c *RedisMissingUserCache) Invalidate(ctx context.Context, id string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.dataKey(id)).Err()
}

func (c *RedisMissingUserCache) dataKey(id string) string {
	return fmt.Sprintf("%s:data:%s", c.prefix, hashToken(id))
}
