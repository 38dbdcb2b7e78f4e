package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/predictfi/predict-go/internal/domain"
)

const defaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized market snapshots. Only read views are cached; trading results
// and positions always come from chain.
//
// Key schema:
//
//	market:{chainID}:{address} - hash with field "data" containing JSON
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. A zero ttl
// falls back to 5 minutes.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl}
}

func marketKey(chainID uint64, market common.Address) string {
	return "market:" + strconv.FormatUint(chainID, 10) + ":" + market.Hex()
}

// Set stores a market snapshot with the cache TTL.
func (mc *MarketCache) Set(ctx context.Context, chainID uint64, info domain.MarketInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", info.Address.Hex(), err)
	}

	key := marketKey(chainID, info.Address)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %s: %w", info.Address.Hex(), err)
	}
	return nil
}

// Get retrieves a cached market snapshot.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, chainID uint64, market common.Address) (domain.MarketInfo, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(chainID, market), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketInfo{}, domain.ErrNotFound
		}
		return domain.MarketInfo{}, fmt.Errorf("redis: get market %s: %w", market.Hex(), err)
	}

	var info domain.MarketInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("redis: unmarshal market %s: %w", market.Hex(), err)
	}
	return info, nil
}

// Invalidate removes a market snapshot from the cache. Used after trading or
// state transitions so stale views are never served past the next read.
func (mc *MarketCache) Invalidate(ctx context.Context, chainID uint64, market common.Address) error {
	if err := mc.rdb.Del(ctx, marketKey(chainID, market)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", market.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
