package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const countCacheTTL = 30 * time.Second

// CountCache keeps per-owner attachment counts in redis so the count helper
// behind template rendering avoids a database round trip per page. Cache
// misses and redis failures fall through to the database.
type CountCache struct {
	client *redis.Client
}

func NewCountCache(client *redis.Client) *CountCache {
	return &CountCache{client: client}
}

func countKey(ownerType, ownerID string) string {
	return "attach:count:" + ownerType + ":" + ownerID
}

func (c *CountCache) Get(ctx context.Context, ownerType, ownerID string) (int64, bool) {
	raw, err := c.client.Get(ctx, countKey(ownerType, ownerID)).Result()
	if err != nil {
		return 0, false
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return count, true
}

func (c *CountCache) Set(ctx context.Context, ownerType, ownerID string, count int64) {
	_ = c.client.Set(ctx, countKey(ownerType, ownerID), strconv.FormatInt(count, 10), countCacheTTL).Err()
}

func (c *CountCache) Invalidate(ctx context.Context, ownerType, ownerID string) {
	_ = c.client.Del(ctx, countKey(ownerType, ownerID)).Err()
}
