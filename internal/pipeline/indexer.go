// Package pipeline runs the off-chain loops: indexing trade events into
// Postgres, refreshing the Redis view caches, and archiving aged rows to S3.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/factory"
	"github.com/predictfi/predict-go/internal/market"
)

// Indexer scans one chain's markets for trade events, persists them, and
// refreshes the cached market snapshots and prices. Indexed rows are an
// analytics sink: position reconstruction always replays chain logs and never
// reads what the indexer wrote.
type Indexer struct {
	chainID uint64
	factory *factory.Client
	store   domain.TradeEventStore
	markets domain.MarketCache
	prices  domain.PriceCache
	bus     domain.PriceBus
	locks   domain.LockManager
	logger  *slog.Logger
}

// NewIndexer creates an Indexer for one chain. markets, prices, bus, and
// locks may each be nil, disabling the corresponding side effect.
func NewIndexer(
	chainID uint64,
	fc *factory.Client,
	store domain.TradeEventStore,
	markets domain.MarketCache,
	prices domain.PriceCache,
	bus domain.PriceBus,
	locks domain.LockManager,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		chainID: chainID,
		factory: fc,
		store:   store,
		markets: markets,
		prices:  prices,
		bus:     bus,
		locks:   locks,
		logger:  logger,
	}
}

// RunLoop runs RunOnce on a ticker until the context is cancelled. The first
// pass runs immediately.
func (ix *Indexer) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := ix.RunOnce(ctx); err != nil {
		ix.logger.Error("index pass failed",
			slog.Uint64("chain_id", ix.chainID),
			slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ix.RunOnce(ctx); err != nil {
				ix.logger.Error("index pass failed",
					slog.Uint64("chain_id", ix.chainID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs one full index pass over every market on the chain. When a
// lock manager is configured, the pass is skipped if another instance already
// holds the chain's indexing lock.
func (ix *Indexer) RunOnce(ctx context.Context) error {
	if ix.locks != nil {
		unlock, err := ix.locks.Acquire(ctx, fmt.Sprintf("indexer:%d", ix.chainID), 5*time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				ix.logger.Debug("index pass skipped, lock held elsewhere",
					slog.Uint64("chain_id", ix.chainID))
				return nil
			}
			return err
		}
		defer unlock()
	}

	markets, err := ix.factory.Markets(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: list markets: %w", err)
	}

	var indexed int
	for _, m := range markets {
		n, err := ix.indexMarket(ctx, m)
		if err != nil {
			// One broken market must not stall the rest of the chain.
			ix.logger.Error("market index failed",
				slog.String("market", m.Address().Hex()),
				slog.String("error", err.Error()))
			continue
		}
		indexed += n
	}

	ix.logger.Info("index pass complete",
		slog.Uint64("chain_id", ix.chainID),
		slog.Int("markets", len(markets)),
		slog.Int("events", indexed))
	return nil
}

// indexMarket scans one market's new trade events, stores them, and refreshes
// its cached snapshot and prices.
func (ix *Indexer) indexMarket(ctx context.Context, m *market.Client) (int, error) {
	backend := m.Binding().Backend()

	latest, err := backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("pipeline: latest block: %w", err)
	}

	from := m.Binding().StartBlock()
	last, err := ix.store.LastBlock(ctx, ix.chainID, m.Address())
	if err != nil {
		return 0, err
	}
	if last >= from {
		from = last + 1
	}
	if from > latest {
		return 0, ix.refreshCaches(ctx, m)
	}

	trades, err := m.Trades(ctx, from, latest)
	if err != nil {
		return 0, err
	}

	if len(trades) > 0 {
		// Resolve block timestamps once per distinct block.
		blockTimes := make(map[uint64]time.Time)
		for i := range trades {
			ts, ok := blockTimes[trades[i].BlockNumber]
			if !ok {
				header, err := backend.HeaderByNumber(ctx, new(big.Int).SetUint64(trades[i].BlockNumber))
				if err != nil {
					return 0, fmt.Errorf("pipeline: header %d: %w", trades[i].BlockNumber, err)
				}
				ts = time.Unix(int64(header.Time), 0).UTC()
				blockTimes[trades[i].BlockNumber] = ts
			}
			trades[i].ChainID = ix.chainID
			trades[i].Timestamp = ts
		}

		if err := ix.store.InsertBatch(ctx, trades); err != nil {
			return 0, err
		}
	}

	return len(trades), ix.refreshCaches(ctx, m)
}

// refreshCaches rebuilds the market's cached snapshot and prices and publishes
// a price tick. Cache failures are logged, not fatal: the chain remains the
// source of truth.
func (ix *Indexer) refreshCaches(ctx context.Context, m *market.Client) error {
	if ix.markets == nil && ix.prices == nil && ix.bus == nil {
		return nil
	}

	if ix.markets != nil {
		info, err := m.Info(ctx)
		if err != nil {
			return err
		}
		if err := ix.markets.Set(ctx, ix.chainID, *info); err != nil {
			ix.logger.Warn("market cache refresh failed",
				slog.String("market", m.Address().Hex()),
				slog.String("error", err.Error()))
		}
	}

	if ix.prices == nil && ix.bus == nil {
		return nil
	}

	count, err := m.OutcomeCount(ctx)
	if err != nil {
		return err
	}
	prices := make([]*big.Int, count)
	for i := range prices {
		if prices[i], err = m.OutcomePrice(ctx, uint64(i)); err != nil {
			return err
		}
	}

	if ix.prices != nil {
		if err := ix.prices.SetPrices(ctx, ix.chainID, m.Address(), prices); err != nil {
			ix.logger.Warn("price cache refresh failed",
				slog.String("market", m.Address().Hex()),
				slog.String("error", err.Error()))
		}
	}
	if ix.bus != nil {
		update := domain.PriceUpdate{
			ChainID:   ix.chainID,
			Market:    m.Address(),
			Prices:    prices,
			Timestamp: time.Now().UTC(),
		}
		if err := ix.bus.PublishPrices(ctx, update); err != nil {
			ix.logger.Warn("price publish failed",
				slog.String("market", m.Address().Hex()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
