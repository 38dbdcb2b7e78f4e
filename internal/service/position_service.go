package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/domain"
)

// PositionService reconstructs user positions and serves indexed trade
// history. Positions are always rebuilt by replaying chain logs; the indexed
// store is only an analytics sink for history queries.
type PositionService struct {
	markets *MarketService
	trades  domain.TradeEventStore
	logger  *slog.Logger
}

// NewPositionService creates a PositionService. trades may be nil when the
// indexer is disabled; history queries then fail with
// domain.ErrIndexerDisabled.
func NewPositionService(markets *MarketService, trades domain.TradeEventStore, logger *slog.Logger) *PositionService {
	return &PositionService{
		markets: markets,
		trades:  trades,
		logger:  logger,
	}
}

// GetPosition rebuilds a user's position in one market from the market's
// trade events and current prices.
func (s *PositionService) GetPosition(ctx context.Context, chainID uint64, marketAddr, user common.Address) (domain.Position, error) {
	m, err := s.markets.Market(chainID, marketAddr)
	if err != nil {
		return domain.Position{}, err
	}

	pos, err := m.Position(ctx, user)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: position for %s in %s: %w",
			user.Hex(), marketAddr.Hex(), err)
	}
	return *pos, nil
}

// UserPositions rebuilds the user's position in every market on a chain and
// returns the ones with any trading activity. One log replay per market, so
// this is the most expensive read the service offers.
func (s *PositionService) UserPositions(ctx context.Context, chainID uint64, user common.Address) ([]domain.Position, error) {
	f, err := s.markets.Factory(chainID)
	if err != nil {
		return nil, err
	}
	markets, err := f.Markets(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list markets: %w", err)
	}

	positions := make([]domain.Position, 0, len(markets))
	for _, m := range markets {
		pos, err := m.Position(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("position_service: position for %s in %s: %w",
				user.Hex(), m.Address().Hex(), err)
		}
		if hasActivity(*pos) {
			positions = append(positions, *pos)
		}
	}
	return positions, nil
}

// hasActivity reports whether any outcome of a reconstructed position saw a
// trade. A user who never touched a market gets no entry, not a zero row.
func hasActivity(pos domain.Position) bool {
	for _, o := range pos.Outcomes {
		if o.Shares.Sign() != 0 || o.OpenVolume.Sign() != 0 || o.ClosingVolume.Sign() != 0 {
			return true
		}
	}
	return false
}

// MarketHistory returns indexed trade events for one market, newest first.
func (s *PositionService) MarketHistory(ctx context.Context, chainID uint64, marketAddr common.Address, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	if s.trades == nil {
		return nil, domain.ErrIndexerDisabled
	}
	events, err := s.trades.ListByMarket(ctx, chainID, marketAddr, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: market history %s: %w", marketAddr.Hex(), err)
	}
	return events, nil
}

// TraderHistory returns indexed trade events for one trader across all
// markets on a chain, newest first.
func (s *PositionService) TraderHistory(ctx context.Context, chainID uint64, trader common.Address, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	if s.trades == nil {
		return nil, domain.ErrIndexerDisabled
	}
	events, err := s.trades.ListByTrader(ctx, chainID, trader, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: trader history %s: %w", trader.Hex(), err)
	}
	return events, nil
}
