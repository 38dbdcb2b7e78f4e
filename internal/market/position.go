package market

import (
	"context"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/predictfi/predict-go/internal/domain"
)

// Position reconstructs a user's position and PnL in this market by replaying
// their full trade-event history against a live mark price.
//
// Nothing here is read from a stored aggregate: every call scans SharesBought
// and SharesSold logs over [startBlock, latest] and reduces them. The
// reduction is commutative, so intra-block ordering is irrelevant, but the
// scan must cover the whole range or the result is wrong. PnL per outcome is
// closingVolume + shares*currentPrice - openVolume: value extracted or
// currently held, minus value committed, unifying realized and unrealized
// gains in one figure.
func (c *Client) Position(ctx context.Context, user common.Address) (*domain.Position, error) {
	count, err := c.OutcomeCount(ctx)
	if err != nil {
		return nil, err
	}

	var (
		buys, sells []types.Log
		prices      = make([]*big.Int, count)
	)

	// The two scans and the per-outcome price reads are independent.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		buys, err = c.binding.FilterEvents(gctx, "SharesBought", []any{user})
		return err
	})
	g.Go(func() (err error) {
		sells, err = c.binding.FilterEvents(gctx, "SharesSold", []any{user})
		return err
	})
	for i := range prices {
		g.Go(func() (err error) {
			prices[i], err = c.OutcomePrice(gctx, uint64(i))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type accumulator struct {
		shares        *big.Int
		sharesBought  *big.Int
		openVolume    *big.Int
		closingVolume *big.Int
	}
	acc := make([]accumulator, count)
	for i := range acc {
		acc[i] = accumulator{
			shares:        new(big.Int),
			sharesBought:  new(big.Int),
			openVolume:    new(big.Int),
			closingVolume: new(big.Int),
		}
	}

	for _, log := range buys {
		idx, shares, amount, fee, err := c.decodeTrade("SharesBought", log)
		if err != nil {
			return nil, err
		}
		if idx >= uint64(count) {
			return nil, errors.New("market: trade event references unknown outcome")
		}
		amountNet := new(big.Int).Sub(amount, fee)
		a := &acc[idx]
		a.openVolume.Add(a.openVolume, amountNet)
		a.sharesBought.Add(a.sharesBought, shares)
		a.shares.Add(a.shares, shares)
	}

	for _, log := range sells {
		idx, shares, amount, _, err := c.decodeTrade("SharesSold", log)
		if err != nil {
			return nil, err
		}
		if idx >= uint64(count) {
			return nil, errors.New("market: trade event references unknown outcome")
		}
		a := &acc[idx]
		a.closingVolume.Add(a.closingVolume, amount)
		a.shares.Sub(a.shares, shares)
	}

	position := &domain.Position{
		Market:   c.Address(),
		User:     user,
		Outcomes: make([]domain.OutcomePosition, count),
	}
	for i := range acc {
		a := acc[i]

		// currentSharesValue = shares * price, de-scaled back to currency.
		currentValue := new(big.Int).Mul(a.shares, prices[i])
		currentValue.Div(currentValue, domain.PriceScale)

		pnl := new(big.Int).Add(a.closingVolume, currentValue)
		pnl.Sub(pnl, a.openVolume)

		avgEntry := new(big.Int)
		if a.sharesBought.Sign() > 0 {
			avgEntry.Mul(a.openVolume, domain.PriceScale)
			avgEntry.Div(avgEntry, a.sharesBought)
		}

		var pnlPercent float64
		if a.openVolume.Sign() > 0 {
			ratio := new(big.Float).Quo(new(big.Float).SetInt(pnl), new(big.Float).SetInt(a.openVolume))
			pnlPercent, _ = ratio.Float64()
			pnlPercent *= 100
		}

		position.Outcomes[i] = domain.OutcomePosition{
			OutcomeIndex:  uint64(i),
			Shares:        a.shares,
			OpenVolume:    a.openVolume,
			ClosingVolume: a.closingVolume,
			AvgEntryPrice: avgEntry,
			CurrentPrice:  prices[i],
			PnL:           pnl,
			PnLPercent:    pnlPercent,
		}
	}
	return position, nil
}

// decodeTrade unpacks one SharesBought/SharesSold log into its common fields.
func (c *Client) decodeTrade(event string, log types.Log) (idx uint64, shares, amount, fee *big.Int, err error) {
	args, err := c.binding.DecodeEvent(event, log)
	if err != nil {
		return 0, nil, nil, nil, err
	}

	rawIdx, err := eventBig(args, "outcomeIndex")
	if err != nil {
		return 0, nil, nil, nil, err
	}
	if shares, err = eventBig(args, "shares"); err != nil {
		return 0, nil, nil, nil, err
	}
	if amount, err = eventBig(args, "amount"); err != nil {
		return 0, nil, nil, nil, err
	}
	if fee, err = eventBig(args, "fee"); err != nil {
		return 0, nil, nil, nil, err
	}
	return rawIdx.Uint64(), shares, amount, fee, nil
}

// Trades returns every trade in this market over [from, to], both sides,
// normalized and ordered by block then log index. Used by the off-chain
// indexer; position reconstruction does not go through here.
func (c *Client) Trades(ctx context.Context, from, to uint64) ([]domain.TradeEvent, error) {
	var buys, sells []types.Log

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		buys, err = c.binding.FilterEventsRange(gctx, from, to, "SharesBought")
		return err
	})
	g.Go(func() (err error) {
		sells, err = c.binding.FilterEventsRange(gctx, from, to, "SharesSold")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trades := make([]domain.TradeEvent, 0, len(buys)+len(sells))
	for _, log := range buys {
		trade, err := c.normalizeTrade(domain.TradeSideBuy, "SharesBought", "buyer", log)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	for _, log := range sells {
		trade, err := c.normalizeTrade(domain.TradeSideSell, "SharesSold", "seller", log)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	sort.Slice(trades, func(i, j int) bool {
		if trades[i].BlockNumber != trades[j].BlockNumber {
			return trades[i].BlockNumber < trades[j].BlockNumber
		}
		return trades[i].LogIndex < trades[j].LogIndex
	})
	return trades, nil
}

func (c *Client) normalizeTrade(side domain.TradeSide, event, traderArg string, log types.Log) (domain.TradeEvent, error) {
	args, err := c.binding.DecodeEvent(event, log)
	if err != nil {
		return domain.TradeEvent{}, err
	}

	trader, ok := args[traderArg].(common.Address)
	if !ok {
		return domain.TradeEvent{}, errors.New("market: trade event trader has unexpected type")
	}
	idx, err := eventBig(args, "outcomeIndex")
	if err != nil {
		return domain.TradeEvent{}, err
	}
	shares, err := eventBig(args, "shares")
	if err != nil {
		return domain.TradeEvent{}, err
	}
	amount, err := eventBig(args, "amount")
	if err != nil {
		return domain.TradeEvent{}, err
	}
	fee, err := eventBig(args, "fee")
	if err != nil {
		return domain.TradeEvent{}, err
	}

	return domain.TradeEvent{
		Market:       c.Address(),
		Trader:       trader,
		Side:         side,
		OutcomeIndex: idx.Uint64(),
		Shares:       shares,
		Amount:       amount,
		Fee:          fee,
		BlockNumber:  log.BlockNumber,
		TxHash:       log.TxHash,
		LogIndex:     log.Index,
	}, nil
}
