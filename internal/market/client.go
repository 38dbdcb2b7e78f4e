// Package market is the client for one deployed binary-outcome market:
// trading operations, read views, AMM quotes, and event-sourced position
// reconstruction.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
)

// Client wraps one market contract instance.
type Client struct {
	binding *contract.Binding
	log     *slog.Logger
}

// NewClient binds a market at the given address. signer may be nil for a
// read-only client.
func NewClient(backend contract.Backend, signer contract.Signer, address common.Address, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		binding: contract.NewBinding(backend, signer, contract.Market, address),
		log:     log,
	}
}

// Address returns the market contract address.
func (c *Client) Address() common.Address { return c.binding.Address() }

// Binding exposes the underlying contract binding, mainly so callers can set
// the historical-event start block after creation.
func (c *Client) Binding() *contract.Binding { return c.binding }

// SetStartBlock bounds this market's historical-event scans. Factory-created
// handles set this to the creation block.
func (c *Client) SetStartBlock(block uint64) { c.binding.SetStartBlock(block) }

// checkDeadline fails fast on an already-expired deadline. Advisory only; the
// contract re-checks authoritatively.
func checkDeadline(deadline time.Time) error {
	if !deadline.After(time.Now()) {
		return &domain.ExpiredDeadlineError{Deadline: deadline}
	}
	return nil
}

func unix(t time.Time) *big.Int {
	return big.NewInt(t.Unix())
}

// executedPrice computes amountNet/shares in PriceScale fixed point, scaling
// before the division to avoid precision loss. Zero shares yields zero.
func executedPrice(amountNet, shares *big.Int) *big.Int {
	if shares == nil || shares.Sign() == 0 {
		return new(big.Int)
	}
	scaled := new(big.Int).Mul(amountNet, domain.PriceScale)
	return scaled.Div(scaled, shares)
}

// eventBig pulls a *big.Int argument out of a decoded event map.
func eventBig(args map[string]any, name string) (*big.Int, error) {
	v, ok := args[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("market: event argument %q is not uint256", name)
	}
	return v, nil
}

// AddLiquidity escrows amount into the pool and returns the minted liquidity
// shares plus the per-outcome share deltas. The LiquidityAdded event only
// carries the liquidity-share count, so the outcome-share rebalancing is
// derived by diffing the caller's balances immediately before and after the
// transaction.
func (c *Client) AddLiquidity(ctx context.Context, amount *big.Int, deadline time.Time) (*domain.LiquidityResult, error) {
	if err := checkDeadline(deadline); err != nil {
		return nil, err
	}

	sender := c.binding.DefaultSender()
	before, err := c.userOutcomeBalances(ctx, sender)
	if err != nil {
		return nil, err
	}

	receipt, err := c.binding.Send(ctx, contract.SendOpts{Value: amount}, "addLiquidity", unix(deadline))
	if err != nil {
		return nil, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, "LiquidityAdded")
	if err != nil {
		return nil, err
	}
	liquidityShares, err := eventBig(args, "liquidityShares")
	if err != nil {
		return nil, err
	}
	paid, err := eventBig(args, "amount")
	if err != nil {
		return nil, err
	}

	after, err := c.userOutcomeBalances(ctx, sender)
	if err != nil {
		return nil, err
	}

	c.log.Debug("liquidity added",
		slog.String("market", c.Address().Hex()),
		slog.String("liquidity_shares", liquidityShares.String()),
		slog.String("tx", receipt.TxHash.Hex()))

	return &domain.LiquidityResult{
		LiquidityShares:    liquidityShares,
		Amount:             paid,
		OutcomeShareDeltas: diffBalances(before, after),
		TxHash:             receipt.TxHash,
		BlockNumber:        receipt.BlockNumber.Uint64(),
	}, nil
}

// RemoveLiquidity burns liquidity shares and returns the currency paid out
// plus the per-outcome share deltas, derived by the same before/after diff as
// AddLiquidity.
func (c *Client) RemoveLiquidity(ctx context.Context, shares *big.Int, deadline time.Time) (*domain.LiquidityResult, error) {
	if err := checkDeadline(deadline); err != nil {
		return nil, err
	}

	sender := c.binding.DefaultSender()
	before, err := c.userOutcomeBalances(ctx, sender)
	if err != nil {
		return nil, err
	}

	receipt, err := c.binding.Send(ctx, contract.SendOpts{}, "removeLiquidity", shares, unix(deadline))
	if err != nil {
		return nil, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, "LiquidityRemoved")
	if err != nil {
		return nil, err
	}
	liquidityShares, err := eventBig(args, "liquidityShares")
	if err != nil {
		return nil, err
	}
	amount, err := eventBig(args, "amount")
	if err != nil {
		return nil, err
	}

	after, err := c.userOutcomeBalances(ctx, sender)
	if err != nil {
		return nil, err
	}

	c.log.Debug("liquidity removed",
		slog.String("market", c.Address().Hex()),
		slog.String("amount", amount.String()),
		slog.String("tx", receipt.TxHash.Hex()))

	return &domain.LiquidityResult{
		LiquidityShares:    liquidityShares,
		Amount:             amount,
		OutcomeShareDeltas: diffBalances(before, after),
		TxHash:             receipt.TxHash,
		BlockNumber:        receipt.BlockNumber.Uint64(),
	}, nil
}

// BuyShares spends amount of native currency on one outcome. The shares, fee,
// and executed price come from the SharesBought event; the contract's math is
// authoritative, never the client's pre-submission quote.
func (c *Client) BuyShares(ctx context.Context, outcomeIndex uint64, amount, minShares *big.Int, deadline time.Time) (*domain.TradeResult, error) {
	if err := checkDeadline(deadline); err != nil {
		return nil, err
	}

	receipt, err := c.binding.Send(ctx, contract.SendOpts{Value: amount},
		"buyShares", new(big.Int).SetUint64(outcomeIndex), minShares, unix(deadline))
	if err != nil {
		return nil, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, "SharesBought")
	if err != nil {
		return nil, err
	}
	shares, err := eventBig(args, "shares")
	if err != nil {
		return nil, err
	}
	paid, err := eventBig(args, "amount")
	if err != nil {
		return nil, err
	}
	fee, err := eventBig(args, "fee")
	if err != nil {
		return nil, err
	}

	amountNet := new(big.Int).Sub(paid, fee)

	c.log.Debug("shares bought",
		slog.String("market", c.Address().Hex()),
		slog.Uint64("outcome", outcomeIndex),
		slog.String("shares", shares.String()),
		slog.String("tx", receipt.TxHash.Hex()))

	return &domain.TradeResult{
		OutcomeIndex:  outcomeIndex,
		Shares:        shares,
		Amount:        paid,
		Fee:           fee,
		AmountNet:     amountNet,
		ExecutedPrice: executedPrice(amountNet, shares),
		TxHash:        receipt.TxHash,
		BlockNumber:   receipt.BlockNumber.Uint64(),
	}, nil
}

// SellShares sells shares of one outcome back to the pool. The amount in the
// SharesSold event is the currency received, already net of fee.
func (c *Client) SellShares(ctx context.Context, outcomeIndex uint64, shares, minAmount *big.Int, deadline time.Time) (*domain.TradeResult, error) {
	if err := checkDeadline(deadline); err != nil {
		return nil, err
	}

	receipt, err := c.binding.Send(ctx, contract.SendOpts{},
		"sellShares", new(big.Int).SetUint64(outcomeIndex), shares, minAmount, unix(deadline))
	if err != nil {
		return nil, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, "SharesSold")
	if err != nil {
		return nil, err
	}
	sold, err := eventBig(args, "shares")
	if err != nil {
		return nil, err
	}
	received, err := eventBig(args, "amount")
	if err != nil {
		return nil, err
	}
	fee, err := eventBig(args, "fee")
	if err != nil {
		return nil, err
	}

	c.log.Debug("shares sold",
		slog.String("market", c.Address().Hex()),
		slog.Uint64("outcome", outcomeIndex),
		slog.String("amount", received.String()),
		slog.String("tx", receipt.TxHash.Hex()))

	return &domain.TradeResult{
		OutcomeIndex:  outcomeIndex,
		Shares:        sold,
		Amount:        received,
		Fee:           fee,
		AmountNet:     received,
		ExecutedPrice: executedPrice(received, sold),
		TxHash:        receipt.TxHash,
		BlockNumber:   receipt.BlockNumber.Uint64(),
	}, nil
}

// CloseMarket transitions the market Open -> Closed. The contract enforces
// that closeTime has passed. Returns the close timestamp from the
// MarketClosed event.
func (c *Client) CloseMarket(ctx context.Context) (time.Time, error) {
	receipt, err := c.binding.Send(ctx, contract.SendOpts{}, "closeMarket")
	if err != nil {
		return time.Time{}, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, "MarketClosed")
	if err != nil {
		return time.Time{}, err
	}
	ts, err := eventBig(args, "timestamp")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64(), 0).UTC(), nil
}

// ResolveMarket transitions the market Closed -> Resolved using the oracle's
// outcome. The oracle is checked first: resolving before it has recorded an
// outcome would revert on-chain, so that case fails here with
// domain.ErrOracleUnresolved instead. Returns the winning outcome index from
// the MarketResolved event.
func (c *Client) ResolveMarket(ctx context.Context) (uint64, error) {
	o, err := c.Oracle(ctx)
	if err != nil {
		return 0, err
	}
	resolved, err := o.IsResolved(ctx)
	if err != nil {
		return 0, err
	}
	if !resolved {
		return 0, fmt.Errorf("market: resolve %s: %w", c.Address().Hex(), domain.ErrOracleUnresolved)
	}

	receipt, err := c.binding.Send(ctx, contract.SendOpts{}, "resolveMarket")
	if err != nil {
		return 0, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, "MarketResolved")
	if err != nil {
		return 0, err
	}
	idx, err := eventBig(args, "outcomeIndex")
	if err != nil {
		return 0, err
	}
	return idx.Uint64(), nil
}

// ClaimFees pays out the sender's accrued liquidity-provider fees.
func (c *Client) ClaimFees(ctx context.Context) (*domain.ClaimResult, error) {
	return c.claim(ctx, "claimFees", "FeesClaimed")
}

// ClaimLiquidity pays out the sender's pool share after resolution.
func (c *Client) ClaimLiquidity(ctx context.Context) (*domain.ClaimResult, error) {
	return c.claim(ctx, "claimLiquidity", "LiquidityClaimed")
}

// ClaimRewards pays out the sender's winning-outcome shares after resolution.
func (c *Client) ClaimRewards(ctx context.Context) (*domain.ClaimResult, error) {
	return c.claim(ctx, "claimRewards", "RewardsClaimed")
}

func (c *Client) claim(ctx context.Context, method, event string) (*domain.ClaimResult, error) {
	receipt, err := c.binding.Send(ctx, contract.SendOpts{}, method)
	if err != nil {
		return nil, err
	}

	args, _, err := c.binding.EventFromReceipt(receipt, event)
	if err != nil {
		return nil, err
	}
	amount, err := eventBig(args, "amount")
	if err != nil {
		return nil, err
	}

	c.log.Debug("claimed",
		slog.String("market", c.Address().Hex()),
		slog.String("method", method),
		slog.String("amount", amount.String()))

	return &domain.ClaimResult{
		Amount:      amount,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// userOutcomeBalances reads the caller's share balance for every outcome.
func (c *Client) userOutcomeBalances(ctx context.Context, user common.Address) ([]*big.Int, error) {
	count, err := c.OutcomeCount(ctx)
	if err != nil {
		return nil, err
	}

	balances := make([]*big.Int, count)
	for i := range balances {
		shares, err := c.UserOutcomeShares(ctx, user, uint64(i))
		if err != nil {
			return nil, err
		}
		balances[i] = shares
	}
	return balances, nil
}

func diffBalances(before, after []*big.Int) []*big.Int {
	deltas := make([]*big.Int, len(after))
	for i := range after {
		deltas[i] = new(big.Int).Sub(after[i], before[i])
	}
	return deltas
}
