package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

var _ Gateway = (*SnapshotCache)(nil)

// SnapshotCache decorates a Gateway with a short-lived Redis cache for
// Search and GetDetails. Snapshots are ephemeral scoring inputs; the
// cache only absorbs repeat lookups of the same product within a
// polling cycle. All other calls pass through untouched.
type SnapshotCache struct {
	Gateway
	rdb *redis.Client
	ttl time.Duration
}

// WithSnapshotCache wraps g with a Redis snapshot cache.
func WithSnapshotCache(g Gateway, rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{Gateway: g, rdb: rdb, ttl: ttl}
}

func (c *SnapshotCache) detailsKey(productID string) string {
	return "snapshot:" + string(c.Supplier()) + ":details:" + productID
}

func (c *SnapshotCache) searchKey(query string) string {
	return "snapshot:" + string(c.Supplier()) + ":search:" + query
}

// GetDetails serves the snapshot from Redis when present, falling back
// to the wrapped gateway on miss or cache failure.
func (c *SnapshotCache) GetDetails(ctx context.Context, productID string) (*supplier.ProductSnapshot, error) {
	key := c.detailsKey(productID)

	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var snap supplier.ProductSnapshot
		if err := json.Unmarshal([]byte(cached), &snap); err == nil {
			return &snap, nil
		}
	} else if err != redis.Nil {
		zctx.From(ctx).Warn("Snapshot cache read failed", zap.String("key", key), zap.Error(err))
	}

	snap, err := c.Gateway.GetDetails(ctx, productID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, snap)
	return snap, nil
}

// Search serves the result list from Redis when present.
func (c *SnapshotCache) Search(ctx context.Context, query string) ([]supplier.ProductSnapshot, error) {
	key := c.searchKey(query)

	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var snaps []supplier.ProductSnapshot
		if err := json.Unmarshal([]byte(cached), &snaps); err == nil {
			return snaps, nil
		}
	} else if err != redis.Nil {
		zctx.From(ctx).Warn("Snapshot cache read failed", zap.String("key", key), zap.Error(err))
	}

	snaps, err := c.Gateway.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, snaps)
	return snaps, nil
}

// store writes v to the cache; failures are logged and ignored.
func (c *SnapshotCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Snapshot cache write failed", zap.String("key", key), zap.Error(err))
	}
}
