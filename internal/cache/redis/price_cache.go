package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/predictfi/predict-go/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each market's outcome prices are stored as a hash at key
// "price:{chainID}:{address}" with fields "0", "1", ... holding decimal
// big-int strings and "ts" holding a Unix nanosecond timestamp.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(chainID uint64, market common.Address) string {
	return "price:" + strconv.FormatUint(chainID, 10) + ":" + market.Hex()
}

// SetPrices stores the latest per-outcome mark prices for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, chainID uint64, market common.Address, prices []*big.Int) error {
	fields := make(map[string]interface{}, len(prices)+1)
	for i, price := range prices {
		fields[strconv.Itoa(i)] = price.String()
	}
	fields["ts"] = strconv.FormatInt(time.Now().UnixNano(), 10)

	if err := pc.rdb.HSet(ctx, priceKey(chainID, market), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", market.Hex(), err)
	}
	return nil
}

// GetPrices retrieves the cached per-outcome prices and their timestamp.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, chainID uint64, market common.Address) ([]*big.Int, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(chainID, market)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", market.Hex(), err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", market.Hex(), err)
	}

	prices := make([]*big.Int, 0, len(vals)-1)
	for i := 0; ; i++ {
		raw, ok := vals[strconv.Itoa(i)]
		if !ok {
			break
		}
		price, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, time.Time{}, fmt.Errorf("redis: parse price %s outcome %d", market.Hex(), i)
		}
		prices = append(prices, price)
	}
	if len(prices) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	return prices, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
