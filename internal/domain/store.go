package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts carries pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeEventStore archives normalized trade events scanned from chain. It is
// an analytics sink only: position reconstruction always replays the logs
// directly and never consults this store.
type TradeEventStore interface {
	// InsertBatch inserts events, silently skipping duplicates
	// (same tx hash + log index).
	InsertBatch(ctx context.Context, events []TradeEvent) error

	// LastBlock returns the highest block number archived for the market,
	// or 0 when no events exist.
	LastBlock(ctx context.Context, chainID uint64, market common.Address) (uint64, error)

	ListByMarket(ctx context.Context, chainID uint64, market common.Address, opts ListOpts) ([]TradeEvent, error)
	ListByTrader(ctx context.Context, chainID uint64, trader common.Address, opts ListOpts) ([]TradeEvent, error)

	// ListBefore returns all events with a block timestamp strictly before
	// the cutoff, for archiving.
	ListBefore(ctx context.Context, before time.Time) ([]TradeEvent, error)

	// DeleteBefore deletes events older than the cutoff and returns the
	// number of rows removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
