package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
)

// AMM is the quote client for a market's pricing contract. Every function on
// the contract is pure, so quotes carry no state-mutation risk and can be
// issued speculatively before a trade.
//
// The deployed contract is authoritative for the curve math: quotes delegate
// to it via eth_call instead of reimplementing the arithmetic client-side,
// which guarantees bit-for-bit agreement with what a submitted trade would
// produce for the same pool snapshot.
type AMM struct {
	binding *contract.Binding
}

// NewAMM binds the pricing contract at the given address.
func NewAMM(backend contract.Backend, address common.Address) *AMM {
	return &AMM{binding: contract.NewBinding(backend, nil, contract.MarketAMM, address)}
}

// Address returns the pricing contract address.
func (a *AMM) Address() common.Address { return a.binding.Address() }

// BuyShares quotes the shares received for spending amount on one outcome,
// given the pool snapshot.
func (a *AMM) BuyShares(ctx context.Context, snap *domain.PoolSnapshot, outcomeIndex uint64, amount *big.Int) (*big.Int, error) {
	return a.quote(ctx, "getBuyShares", snap, new(big.Int).SetUint64(outcomeIndex), amount)
}

// SellShares quotes the currency received for selling shares of one outcome,
// given the pool snapshot.
func (a *AMM) SellShares(ctx context.Context, snap *domain.PoolSnapshot, outcomeIndex uint64, shares *big.Int) (*big.Int, error) {
	return a.quote(ctx, "getSellShares", snap, new(big.Int).SetUint64(outcomeIndex), shares)
}

// OutcomePrice quotes one outcome's normalized price for the pool snapshot,
// in PriceScale fixed point.
func (a *AMM) OutcomePrice(ctx context.Context, snap *domain.PoolSnapshot, outcomeIndex uint64) (*big.Int, error) {
	return a.quote(ctx, "getOutcomePrice", snap, new(big.Int).SetUint64(outcomeIndex))
}

// AddLiquidityQuote quotes the liquidity shares minted for depositing amount.
func (a *AMM) AddLiquidityQuote(ctx context.Context, snap *domain.PoolSnapshot, amount *big.Int) (*big.Int, error) {
	return a.quote(ctx, "getAddLiquidityQuote", snap, amount)
}

// RemoveLiquidityQuote quotes the currency paid out for burning
// liquidityShares.
func (a *AMM) RemoveLiquidityQuote(ctx context.Context, snap *domain.PoolSnapshot, liquidityShares *big.Int) (*big.Int, error) {
	return a.quote(ctx, "getRemoveLiquidityQuote", snap, liquidityShares)
}

func (a *AMM) quote(ctx context.Context, method string, snap *domain.PoolSnapshot, extra ...any) (*big.Int, error) {
	args := append([]any{snap.Liquidity, snap.OutcomeShares}, extra...)
	out, err := a.binding.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("market: %s result has unexpected type", method)
	}
	return v, nil
}

// AMM resolves the market's pricing contract and returns a quote client for
// it.
func (c *Client) AMM(ctx context.Context) (*AMM, error) {
	addr, err := c.callAddress(ctx, "marketAMM")
	if err != nil {
		return nil, err
	}
	return NewAMM(c.binding.Backend(), addr), nil
}

// QuoteBuyShares fetches the current pool snapshot and quotes a buy against
// it.
func (c *Client) QuoteBuyShares(ctx context.Context, outcomeIndex uint64, amount *big.Int) (*big.Int, error) {
	amm, snap, err := c.ammWithSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return amm.BuyShares(ctx, snap, outcomeIndex, amount)
}

// QuoteSellShares fetches the current pool snapshot and quotes a sell against
// it.
func (c *Client) QuoteSellShares(ctx context.Context, outcomeIndex uint64, shares *big.Int) (*big.Int, error) {
	amm, snap, err := c.ammWithSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return amm.SellShares(ctx, snap, outcomeIndex, shares)
}

// QuoteAddLiquidity fetches the current pool snapshot and quotes the
// liquidity shares minted for amount.
func (c *Client) QuoteAddLiquidity(ctx context.Context, amount *big.Int) (*domain.LiquidityQuote, error) {
	amm, snap, err := c.ammWithSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	shares, err := amm.AddLiquidityQuote(ctx, snap, amount)
	if err != nil {
		return nil, err
	}
	return &domain.LiquidityQuote{LiquidityShares: shares}, nil
}

// QuoteRemoveLiquidity fetches the current pool snapshot and quotes the
// payout for burning liquidityShares.
func (c *Client) QuoteRemoveLiquidity(ctx context.Context, liquidityShares *big.Int) (*big.Int, error) {
	amm, snap, err := c.ammWithSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return amm.RemoveLiquidityQuote(ctx, snap, liquidityShares)
}

func (c *Client) ammWithSnapshot(ctx context.Context) (*AMM, *domain.PoolSnapshot, error) {
	amm, err := c.AMM(ctx)
	if err != nil {
		return nil, nil, err
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	return amm, snap, nil
}
