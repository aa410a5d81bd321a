package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	id "expenseflow/pkg/domain"
)

// StatusCache serves status reads from a possibly-slightly-stale snapshot.
// The workflow invalidates on every write, so a cached entry never shows a
// half-applied decision; between invalidation and the next read the cache is
// simply empty.
type StatusCache interface {
	Get(ctx context.Context, claimID id.ClaimID) (*ClaimStatus, bool)
	Set(ctx context.Context, claimID id.ClaimID, status *ClaimStatus)
	Invalidate(ctx context.Context, claimID id.ClaimID)
}

// RedisStatusCache caches status projections in Redis with a TTL.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(claimID id.ClaimID) string {
	return "expenseflow:claim:status:" + claimID.String()
}

// Get returns the cached projection. Cache trouble degrades to a store read.
func (c *RedisStatusCache) Get(ctx context.Context, claimID id.ClaimID) (*ClaimStatus, bool) {
	raw, err := c.client.Get(ctx, statusKey(claimID)).Bytes()
	if err != nil {
		return nil, false
	}
	var status ClaimStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, false
	}
	return &status, true
}

func (c *RedisStatusCache) Set(ctx context.Context, claimID id.ClaimID, status *ClaimStatus) {
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, statusKey(claimID), raw, c.ttl).Err()
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, claimID id.ClaimID) {
	_ = c.client.Del(ctx, statusKey(claimID)).Err()
}
