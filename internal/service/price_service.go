package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/domain"
)

// PriceService serves per-outcome mark prices, cache-first with a chain
// fallback, and exposes the live price stream for WebSocket fan-out.
type PriceService struct {
	markets *MarketService
	cache   domain.PriceCache
	bus     domain.PriceBus
	logger  *slog.Logger
}

// NewPriceService creates a PriceService. cache and bus may each be nil.
func NewPriceService(markets *MarketService, cache domain.PriceCache, bus domain.PriceBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		markets: markets,
		cache:   cache,
		bus:     bus,
		logger:  logger,
	}
}

// GetPrices returns the per-outcome prices for a market and the time they
// were observed. Cached prices are preferred; on a miss, prices are read from
// chain and the cache is back-filled.
func (s *PriceService) GetPrices(ctx context.Context, chainID uint64, marketAddr common.Address) ([]*big.Int, time.Time, error) {
	if s.cache != nil {
		prices, ts, err := s.cache.GetPrices(ctx, chainID, marketAddr)
		if err == nil {
			return prices, ts, nil
		}
	}

	m, err := s.markets.Market(chainID, marketAddr)
	if err != nil {
		return nil, time.Time{}, err
	}

	count, err := m.OutcomeCount(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("price_service: outcome count %s: %w", marketAddr.Hex(), err)
	}
	prices := make([]*big.Int, count)
	for i := range prices {
		if prices[i], err = m.OutcomePrice(ctx, uint64(i)); err != nil {
			return nil, time.Time{}, fmt.Errorf("price_service: outcome price %s/%d: %w", marketAddr.Hex(), i, err)
		}
	}
	now := time.Now().UTC()

	if s.cache != nil {
		if cacheErr := s.cache.SetPrices(ctx, chainID, marketAddr, prices); cacheErr != nil {
			s.logger.WarnContext(ctx, "price_service: cache set failed",
				slog.String("market", marketAddr.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return prices, now, nil
}

// Subscribe returns a channel of live price updates for one chain. Returns
// nil when no price bus is configured.
func (s *PriceService) Subscribe(ctx context.Context, chainID uint64) (<-chan domain.PriceUpdate, error) {
	if s.bus == nil {
		return nil, nil
	}
	return s.bus.SubscribePrices(ctx, chainID)
}
