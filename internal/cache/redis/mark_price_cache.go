package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyledger/internal/domain"
)

// MarkPriceCache implements domain.MarkPriceCache using Redis hashes.
// Each token's price is stored at key "mark:{tokenID}" with fields "price"
// and "ts" (Unix nanosecond timestamp). Entries expire after the configured
// TTL so a stale mark reads as a cache miss rather than a bad valuation.
type MarkPriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarkPriceCache creates a MarkPriceCache backed by the given Client.
// A non-positive ttl falls back to one minute.
func NewMarkPriceCache(c *Client, ttl time.Duration) *MarkPriceCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MarkPriceCache{rdb: c.rdb, ttl: ttl}
}

func markKey(tokenID string) string {
	return "mark:" + tokenID
}

// SetPrice stores the latest reference price for a token and resets its TTL.
func (mc *MarkPriceCache) SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error {
	key := markKey(tokenID)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := mc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mark price %s: %w", tokenID, err)
	}
	return nil
}

// GetPrice retrieves the latest reference price and timestamp for a token.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (mc *MarkPriceCache) GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error) {
	vals, err := mc.rdb.HGetAll(ctx, markKey(tokenID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mark price %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark price %s: %w", tokenID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark ts %s: %w", tokenID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves reference prices for multiple tokens using a pipeline.
// Tokens whose keys do not exist are silently omitted from the result map.
func (mc *MarkPriceCache) GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := mc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokenIDs))
	for _, id := range tokenIDs {
		cmds[id] = pipe.HGetAll(ctx, markKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get mark prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(tokenIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[id] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.MarkPriceCache = (*MarkPriceCache)(nil)
