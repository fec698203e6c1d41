package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a read-through side cache in front of the store. It is never the
// source of truth: every failure is logged and reported as a miss. A nil *Cache
// is a cache that always misses.
type Cache struct {
	rdb redis.Cmdable
}

func NewCache(rdb redis.Cmdable) *Cache { return &Cache{rdb: rdb} }

// OrderView loads the cached view of one order into dst.
func (c *Cache) OrderView(ctx context.Context, orderID string, dst any) bool {
	return c.get(ctx, fmt.Sprintf(KeyOrderView, orderID), dst)
}

func (c *Cache) PutOrderView(ctx context.Context, orderID string, v any, ttl time.Duration) {
	c.set(ctx, fmt.Sprintf(KeyOrderView, orderID), v, ttl)
}

func (c *Cache) Products(ctx context.Context, dst any) bool {
	return c.get(ctx, KeyProducts, dst)
}

func (c *Cache) PutProducts(ctx context.Context, v any) {
	c.set(ctx, KeyProducts, v, TTLProducts)
}

// Invalidate drops whatever a change to entity/id makes stale. Order views are
// dropped on update and delete (a fresh order has no cached view yet); the product
// list is dropped on any product event.
func (c *Cache) Invalidate(ctx context.Context, entity, id, event string) {
	if c == nil {
		return
	}
	var key string
	switch entity {
	case EntityOrder:
		if event == EventCreate {
			return
		}
		key = fmt.Sprintf(KeyOrderView, id)
	case EntityProduct:
		key = KeyProducts
	default:
		return
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		logging.FromContext(ctx).Warn("cache_invalidate_failed",
			zap.String("key", key), zap.String("event", event), zap.Error(err))
	}
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logging.FromContext(ctx).Warn("cache_get_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		logging.FromContext(ctx).Warn("cache_decode_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(ctx).Warn("cache_encode_failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("cache_set_failed", zap.String("key", key), zap.Error(err))
	}
}
