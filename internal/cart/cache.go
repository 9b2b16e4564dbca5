package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cache key for a cart total: cart:total:{cart_id} -> decimal string.
const totalKey = "cart:total:%d"

// TTLCartTotal bounds staleness of a cached total. The cache is never the
// system of record; a lost key only costs a recompute.
var TTLCartTotal = 60 * time.Second

// TotalCache is a best-effort read-through cache for cart totals. Every
// line mutation must invalidate the owning cart's key synchronously.
type TotalCache interface {
	Get(ctx context.Context, cartID int) (decimal.Decimal, bool)
	Set(ctx context.Context, cartID int, total decimal.Decimal)
	Invalidate(ctx context.Context, cartID int)
}

type RedisTotalCache struct {
	client *redis.Client
}

func NewRedisTotalCache(client *redis.Client) *RedisTotalCache {
	return &RedisTotalCache{client: client}
}

func (c *RedisTotalCache) Get(ctx context.Context, cartID int) (decimal.Decimal, bool) {
	raw, err := c.client.Get(ctx, fmt.Sprintf(totalKey, cartID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return total, true
}

func (c *RedisTotalCache) Set(ctx context.Context, cartID int, total decimal.Decimal) {
	_ = c.client.Set(ctx, fmt.Sprintf(totalKey, cartID), total.String(), TTLCartTotal).Err()
}

func (c *RedisTotalCache) Invalidate(ctx context.Context, cartID int) {
	_ = c.client.Del(ctx, fmt.Sprintf(totalKey, cartID)).Err()
}

// NopTotalCache disables caching; every Total call recomputes.
type NopTotalCache struct{}

func (NopTotalCache) Get(ctx context.Context, cartID int) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (NopTotalCache) Set(ctx context.Context, cartID int, total decimal.Decimal) {}
func (NopTotalCache) Invalidate(ctx context.Context, cartID int)                 {}
