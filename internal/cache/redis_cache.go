package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dukaanpos/backend/internal/domain"
)

type RedisOverviewCache struct {
	client *redis.Client
}

func NewRedisOverviewCache(client *redis.Client) *RedisOverviewCache {
	return &RedisOverviewCache{client: client}
}

func (c *RedisOverviewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOverviewCache) Close() error {
	return c.client.Close()
}

// Key builds the cache key for one store and period. Keys share the
// store prefix so InvalidateStore can clear every cached period at once.
func Key(storeID string, from, to *time.Time) string {
	key := "overview:" + storeID + ":"
	if from != nil {
		key += from.UTC().Format(time.RFC3339)
	}
	key += ":"
	if to != nil {
		key += to.UTC().Format(time.RFC3339)
	}
	return key
}

func (c *RedisOverviewCache) Get(ctx context.Context, key string) (*domain.FinancialOverview, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var overview domain.FinancialOverview
	if err := json.Unmarshal([]byte(val), &overview); err != nil {
		return nil, false, err
	}
	return &overview, true, nil
}

func (c *RedisOverviewCache) Set(ctx context.Context, key string, value *domain.FinancialOverview, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisOverviewCache) InvalidateStore(ctx context.Context, storeID string) error {
	iter := c.client.Scan(ctx, 0, "overview:"+storeID+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
