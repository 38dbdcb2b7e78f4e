package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/domain"
)

// PriceService defines the methods that the price handler requires from the
// service layer.
type PriceService interface {
	GetPrices(ctx context.Context, chainID uint64, marketAddr common.Address) ([]*big.Int, time.Time, error)
}

// PriceHandler serves price HTTP endpoints.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger,
	}
}

// pricesResponse carries per-outcome mark prices as decimal strings scaled by
// 1e18.
type pricesResponse struct {
	ChainID   uint64     `json:"chain_id"`
	Market    string     `json:"market"`
	Prices    []*big.Int `json:"prices"`
	Timestamp time.Time  `json:"timestamp"`
}

// GetPrices returns the per-outcome prices for one market.
// GET /api/chains/{chain}/markets/{address}/prices
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
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

	prices, ts, err := h.prices.GetPrices(r.Context(), chainID, addr)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get prices failed",
			slog.String("market", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}

	writeJSON(w, http.StatusOK, pricesResponse{
		ChainID:   chainID,
		Market:    addr.Hex(),
		Prices:    prices,
		Timestamp: ts,
	})
}
