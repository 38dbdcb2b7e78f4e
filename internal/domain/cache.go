package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketCache caches market view snapshots with a TTL. Only read views are
// cached; trading results and positions always come from chain.
type MarketCache interface {
	Set(ctx context.Context, chainID uint64, info MarketInfo) error
	Get(ctx context.Context, chainID uint64, market common.Address) (MarketInfo, error)
	Invalidate(ctx context.Context, chainID uint64, market common.Address) error
}

// PriceCache caches per-outcome mark prices.
type PriceCache interface {
	SetPrices(ctx context.Context, chainID uint64, market common.Address, prices []*big.Int) error
	GetPrices(ctx context.Context, chainID uint64, market common.Address) ([]*big.Int, time.Time, error)
}

// PriceUpdate is one live price tick, published after the indexer refreshes a
// market's mark prices.
type PriceUpdate struct {
	ChainID   uint64         `json:"chain_id"`
	Market    common.Address `json:"market"`
	Prices    []*big.Int     `json:"prices"`
	Timestamp time.Time      `json:"timestamp"`
}

// PriceBus fans live price updates out to subscribers, one channel per chain.
type PriceBus interface {
	PublishPrices(ctx context.Context, update PriceUpdate) error
	SubscribePrices(ctx context.Context, chainID uint64) (<-chan PriceUpdate, error)
}

// LockManager hands out distributed locks, so only one indexer instance scans
// a chain at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter writes an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged trade events out of the primary store into blob
// storage.
type Archiver interface {
	ArchiveTradeEvents(ctx context.Context, before time.Time) (int64, error)
}
