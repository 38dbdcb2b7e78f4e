package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/factory"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	ListMarkets(ctx context.Context, chainID uint64) ([]domain.MarketInfo, error)
	GetFullMarket(ctx context.Context, chainID uint64, addr common.Address) (domain.FullMarketInfo, error)
	CreateMarket(ctx context.Context, chainID uint64, args factory.CreateMarketArgs) (domain.MarketInfo, error)
	UserCreatedMarkets(ctx context.Context, chainID uint64, user common.Address) ([]domain.MarketInfo, error)
	QuoteBuyShares(ctx context.Context, chainID uint64, addr common.Address, outcomeIndex uint64, amount *big.Int) (*big.Int, error)
	QuoteSellShares(ctx context.Context, chainID uint64, addr common.Address, outcomeIndex uint64, shares *big.Int) (*big.Int, error)
	QuoteAddLiquidity(ctx context.Context, chainID uint64, addr common.Address, amount *big.Int) (*domain.LiquidityQuote, error)
	QuoteRemoveLiquidity(ctx context.Context, chainID uint64, addr common.Address, liquidityShares *big.Int) (*big.Int, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	ChainID uint64              `json:"chain_id"`
	Markets []domain.MarketInfo `json:"markets"`
	Total   int                 `json:"total"`
}

// ListMarkets returns every market created by the chain's factory.
// GET /api/chains/{chain}/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}

	markets, err := h.markets.ListMarkets(r.Context(), chainID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.Uint64("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		ChainID: chainID,
		Markets: markets,
		Total:   len(markets),
	})
}

// GetMarket returns the full view of a single market, including pool state
// and per-outcome prices.
// GET /api/chains/{chain}/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
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

	full, err := h.markets.GetFullMarket(r.Context(), chainID, addr)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, full)
}

// createMarketRequest is the POST body for market creation. CloseTime is unix
// seconds; InitialLiquidity is a base-10 integer in the smallest
// native-currency unit.
type createMarketRequest struct {
	Question            string   `json:"question"`
	Outcomes            []string `json:"outcomes"`
	CloseTime           int64    `json:"close_time"`
	InitialLiquidity    string   `json:"initial_liquidity"`
	ResolveDelaySeconds int64    `json:"resolve_delay_seconds"`
	FeeBPS              int64    `json:"fee_bps"`
}

// createMarketResponse wraps the snapshot of a freshly created market.
type createMarketResponse struct {
	ChainID uint64            `json:"chain_id"`
	Market  domain.MarketInfo `json:"market"`
}

// CreateMarket submits a market creation with the initial liquidity attached
// and returns the new market's snapshot.
// POST /api/chains/{chain}/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	liquidity, ok := new(big.Int).SetString(req.InitialLiquidity, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "initial_liquidity must be a base-10 integer")
		return
	}

	info, err := h.markets.CreateMarket(r.Context(), chainID, factory.CreateMarketArgs{
		Question:            req.Question,
		OutcomeNames:        req.Outcomes,
		CloseTimeUnix:       req.CloseTime,
		InitialLiquidity:    liquidity,
		ResolveDelaySeconds: req.ResolveDelaySeconds,
		FeeBPS:              req.FeeBPS,
	})
	if err != nil {
		h.writeCreateError(w, r, chainID, err)
		return
	}

	writeJSON(w, http.StatusCreated, createMarketResponse{
		ChainID: chainID,
		Market:  info,
	})
}

func (h *MarketHandler) writeCreateError(w http.ResponseWriter, r *http.Request, chainID uint64, err error) {
	var validation *domain.ValidationError
	var revert *domain.DomainRevertError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &revert):
		writeError(w, http.StatusUnprocessableEntity, revert.Error())
	case errors.Is(err, domain.ErrUnknownChain):
		writeError(w, http.StatusNotFound, "unknown chain")
	case errors.Is(err, domain.ErrNoSigner):
		writeError(w, http.StatusServiceUnavailable, "no signing credential configured")
	default:
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.Uint64("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
	}
}

// userMarketsResponse wraps the user-created-markets output.
type userMarketsResponse struct {
	ChainID uint64              `json:"chain_id"`
	User    string              `json:"user"`
	Markets []domain.MarketInfo `json:"markets"`
	Total   int                 `json:"total"`
}

// UserMarkets returns every market the given user created on a chain.
// GET /api/chains/{chain}/users/{user}/markets
func (h *MarketHandler) UserMarkets(w http.ResponseWriter, r *http.Request) {
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

	markets, err := h.markets.UserCreatedMarkets(r.Context(), chainID, user)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: user markets failed",
			slog.String("user", user.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list user markets")
		return
	}

	writeJSON(w, http.StatusOK, userMarketsResponse{
		ChainID: chainID,
		User:    user.Hex(),
		Markets: markets,
		Total:   len(markets),
	})
}

// quoteResponse is the shared quote endpoint output. Exactly one of Shares,
// Amount, or Liquidity is populated depending on the quoted operation.
type quoteResponse struct {
	Side      string                 `json:"side"`
	Shares    *big.Int               `json:"shares,omitempty"`
	Amount    *big.Int               `json:"amount,omitempty"`
	Liquidity *domain.LiquidityQuote `json:"liquidity,omitempty"`
}

// Quote mirrors the on-chain pricing for a hypothetical operation without
// submitting anything.
// GET /api/chains/{chain}/markets/{address}/quote?side=buy&outcome=0&amount=N
// Sides: buy (amount), sell (shares), add_liquidity (amount),
// remove_liquidity (shares).
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
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

	side := r.URL.Query().Get("side")
	resp := quoteResponse{Side: side}
	var err error

	switch side {
	case "buy":
		outcome, ok := uintQueryParam(r, "outcome")
		if !ok {
			writeError(w, http.StatusBadRequest, "missing or invalid outcome")
			return
		}
		amount, ok := bigQueryParam(r, "amount")
		if !ok {
			writeError(w, http.StatusBadRequest, "missing or invalid amount")
			return
		}
		resp.Shares, err = h.markets.QuoteBuyShares(r.Context(), chainID, addr, outcome, amount)

	case "sell":
		outcome, ok := uintQueryParam(r, "outcome")
		if !ok {
			writeError(w, http.StatusBadRequest, "missing or invalid outcome")
			return
		}
		shares, ok := bigQueryParam(r, "shares")
		if !ok {
			writeError(w, http.StatusBadRequest, "missing or invalid shares")
			return
		}
		resp.Amount, err = h.markets.QuoteSellShares(r.Context(), chainID, addr, outcome, shares)

	case "add_liquidity":
		amount, ok := bigQueryParam(r, "amount")
		if !ok {
			writeError(w, http.StatusBadRequest, "missing or invalid amount")
			return
		}
		resp.Liquidity, err = h.markets.QuoteAddLiquidity(r.Context(), chainID, addr, amount)

	case "remove_liquidity":
		shares, ok := bigQueryParam(r, "shares")
		if !ok {
			writeError(w, http.StatusBadRequest, "missing or invalid shares")
			return
		}
		resp.Amount, err = h.markets.QuoteRemoveLiquidity(r.Context(), chainID, addr, shares)

	default:
		writeError(w, http.StatusBadRequest, "side must be one of buy, sell, add_liquidity, remove_liquidity")
		return
	}

	if err != nil {
		if errors.Is(err, domain.ErrUnknownChain) {
			writeError(w, http.StatusNotFound, "unknown chain")
			return
		}
		var revert *domain.DomainRevertError
		if errors.As(err, &revert) {
			writeError(w, http.StatusUnprocessableEntity, revert.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("market", addr.Hex()),
			slog.String("side", side),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to quote")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
