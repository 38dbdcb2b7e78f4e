// Package service composes the chain clients, caches, and stores behind the
// HTTP and WebSocket surfaces.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/factory"
	"github.com/predictfi/predict-go/internal/market"
)

// MarketService handles market lookup and enumeration across the configured
// chains. Read views are served cache-first; anything that moves money goes
// straight to chain.
type MarketService struct {
	factories map[uint64]*factory.Client
	cache     domain.MarketCache
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil, in which case
// every read goes to chain.
func NewMarketService(factories map[uint64]*factory.Client, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		factories: factories,
		cache:     cache,
		logger:    logger,
	}
}

// Factory returns the factory client for a chain.
func (s *MarketService) Factory(chainID uint64) (*factory.Client, error) {
	f, ok := s.factories[chainID]
	if !ok {
		return nil, fmt.Errorf("market_service: chain %d: %w", chainID, domain.ErrUnknownChain)
	}
	return f, nil
}

// Market returns a client bound to an arbitrary market address on a chain.
// The handle shares the chain's backend and signer with the factory.
func (s *MarketService) Market(chainID uint64, addr common.Address) (*market.Client, error) {
	f, err := s.Factory(chainID)
	if err != nil {
		return nil, err
	}
	b := f.Binding()
	m := market.NewClient(b.Backend(), b.Signer(), addr, s.logger)
	m.SetStartBlock(b.StartBlock())
	return m, nil
}

// GetMarket retrieves a market snapshot, checking the cache first and falling
// back to chain on a miss. Chain reads back-fill the cache.
func (s *MarketService) GetMarket(ctx context.Context, chainID uint64, addr common.Address) (domain.MarketInfo, error) {
	if s.cache != nil {
		info, err := s.cache.Get(ctx, chainID, addr)
		if err == nil {
			return info, nil
		}
	}

	m, err := s.Market(chainID, addr)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	info, err := m.Info(ctx)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: read market %s: %w", addr.Hex(), err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, chainID, *info); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market", addr.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return *info, nil
}

// GetFullMarket retrieves the full market view including pool state and
// per-outcome prices. Always read from chain: pool state moves with every
// trade.
func (s *MarketService) GetFullMarket(ctx context.Context, chainID uint64, addr common.Address) (domain.FullMarketInfo, error) {
	m, err := s.Market(chainID, addr)
	if err != nil {
		return domain.FullMarketInfo{}, err
	}
	full, err := m.FullInfo(ctx)
	if err != nil {
		return domain.FullMarketInfo{}, fmt.Errorf("market_service: read full market %s: %w", addr.Hex(), err)
	}
	return *full, nil
}

// ListMarkets enumerates every market the chain's factory has created and
// reads each one's snapshot.
func (s *MarketService) ListMarkets(ctx context.Context, chainID uint64) ([]domain.MarketInfo, error) {
	f, err := s.Factory(chainID)
	if err != nil {
		return nil, err
	}

	markets, err := f.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}

	infos := make([]domain.MarketInfo, 0, len(markets))
	for _, m := range markets {
		info, err := s.GetMarket(ctx, chainID, m.Address())
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// QuoteBuyShares mirrors the on-chain pricing for a buy of the given amount.
func (s *MarketService) QuoteBuyShares(ctx context.Context, chainID uint64, addr common.Address, outcomeIndex uint64, amount *big.Int) (*big.Int, error) {
	m, err := s.Market(chainID, addr)
	if err != nil {
		return nil, err
	}
	return m.QuoteBuyShares(ctx, outcomeIndex, amount)
}

// QuoteSellShares mirrors the on-chain pricing for a sale of the given share
// count.
func (s *MarketService) QuoteSellShares(ctx context.Context, chainID uint64, addr common.Address, outcomeIndex uint64, shares *big.Int) (*big.Int, error) {
	m, err := s.Market(chainID, addr)
	if err != nil {
		return nil, err
	}
	return m.QuoteSellShares(ctx, outcomeIndex, shares)
}

// QuoteAddLiquidity mirrors the on-chain pricing for a liquidity deposit.
func (s *MarketService) QuoteAddLiquidity(ctx context.Context, chainID uint64, addr common.Address, amount *big.Int) (*domain.LiquidityQuote, error) {
	m, err := s.Market(chainID, addr)
	if err != nil {
		return nil, err
	}
	return m.QuoteAddLiquidity(ctx, amount)
}

// QuoteRemoveLiquidity mirrors the on-chain pricing for a liquidity
// withdrawal.
func (s *MarketService) QuoteRemoveLiquidity(ctx context.Context, chainID uint64, addr common.Address, liquidityShares *big.Int) (*big.Int, error) {
	m, err := s.Market(chainID, addr)
	if err != nil {
		return nil, err
	}
	return m.QuoteRemoveLiquidity(ctx, liquidityShares)
}

// CreateMarket validates and submits a market creation on the given chain,
// then reads back the new market's snapshot. Validation and revert errors
// surface untouched so the HTTP layer can map them.
func (s *MarketService) CreateMarket(ctx context.Context, chainID uint64, args factory.CreateMarketArgs) (domain.MarketInfo, error) {
	f, err := s.Factory(chainID)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	m, err := f.CreateMarket(ctx, args)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	return s.GetMarket(ctx, chainID, m.Address())
}

// UserCreatedMarkets returns snapshots of every market the given user created
// on a chain, found by replaying the factory's MarketCreated events.
func (s *MarketService) UserCreatedMarkets(ctx context.Context, chainID uint64, user common.Address) ([]domain.MarketInfo, error) {
	f, err := s.Factory(chainID)
	if err != nil {
		return nil, err
	}

	markets, err := f.UserCreatedMarkets(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("market_service: markets created by %s: %w", user.Hex(), err)
	}

	infos := make([]domain.MarketInfo, 0, len(markets))
	for _, m := range markets {
		info, err := s.GetMarket(ctx, chainID, m.Address())
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
