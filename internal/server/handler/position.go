package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/domain"
)

// PositionService defines the methods that the position handler requires from
// the service layer.
type PositionService interface {
	GetPosition(ctx context.Context, chainID uint64, marketAddr, user common.Address) (domain.Position, error)
	UserPositions(ctx context.Context, chainID uint64, user common.Address) ([]domain.Position, error)
	MarketHistory(ctx context.Context, chainID uint64, marketAddr common.Address, opts domain.ListOpts) ([]domain.TradeEvent, error)
	TraderHistory(ctx context.Context, chainID uint64, trader common.Address, opts domain.ListOpts) ([]domain.TradeEvent, error)
}

// PositionHandler serves position and trade-history HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// GetPosition rebuilds one user's position in one market from chain logs.
// GET /api/chains/{chain}/markets/{address}/positions/{user}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	addr, ok := addressParam(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market address")
		return
	}
	user, ok := addressParam(r, "user")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}

	pos, err := h.positions.GetPosition(r.Context(), chainID, addr, user)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("market", addr.Hex()),
			slog.String("user", user.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// userPositionsResponse wraps the all-markets position output.
type userPositionsResponse struct {
	ChainID   uint64            `json:"chain_id"`
	User      string            `json:"user"`
	Positions []domain.Position `json:"positions"`
	Total     int               `json:"total"`
}

// UserPositions rebuilds one user's position in every market on a chain and
// returns the ones with activity.
// GET /api/chains/{chain}/users/{user}/positions
func (h *PositionHandler) UserPositions(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	user, ok := addressParam(r, "user")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}

	positions, err := h.positions.UserPositions(r.Context(), chainID, user)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: user positions failed",
			slog.String("user", user.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load user positions")
		return
	}

	writeJSON(w, http.StatusOK, userPositionsResponse{
		ChainID:   chainID,
		User:      user.Hex(),
		Positions: positions,
		Total:     len(positions),
	})
}

// tradeHistoryResponse wraps trade-history output with pagination metadata.
type tradeHistoryResponse struct {
	Trades []domain.TradeEvent `json:"trades"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// MarketHistory returns indexed trade events for one market, newest first.
// GET /api/chains/{chain}/markets/{address}/trades
func (h *PositionHandler) MarketHistory(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	addr, ok := addressParam(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market address")
		return
	}

	opts := parseListOpts(r)
	trades, err := h.positions.MarketHistory(r.Context(), chainID, addr, opts)
	if err != nil {
		h.writeHistoryError(w, r, err, "market history")
		return
	}

	writeJSON(w, http.StatusOK, tradeHistoryResponse{
		Trades: trades,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// TraderHistory returns indexed trade events for one trader across all
// markets on a chain, newest first.
// GET /api/chains/{chain}/traders/{user}/trades
func (h *PositionHandler) TraderHistory(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	user, ok := addressParam(r, "user")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid trader address")
		return
	}

	opts := parseListOpts(r)
	trades, err := h.positions.TraderHistory(r.Context(), chainID, user, opts)
	if err != nil {
		h.writeHistoryError(w, r, err, "trader history")
		return
	}

	writeJSON(w, http.StatusOK, tradeHistoryResponse{
		Trades: trades,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

func (h *PositionHandler) writeHistoryError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrIndexerDisabled):
		writeError(w, http.StatusNotImplemented, "trade history requires the indexer")
	case errors.Is(err, domain.ErrUnknownChain):
		writeError(w, http.StatusNotFound, "unknown chain")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+what+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load "+what)
	}
}
