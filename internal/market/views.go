package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/oracle"
)

// outcomes is the decoded getOutcomes result.
type outcomes struct {
	names           []string
	totalShares     []*big.Int
	availableShares []*big.Int
}

func (c *Client) outcomes(ctx context.Context) (*outcomes, error) {
	out, err := c.binding.Call(ctx, "getOutcomes")
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("market: getOutcomes returned %d values", len(out))
	}

	names, ok := out[0].([]string)
	if !ok {
		return nil, errors.New("market: getOutcomes names have unexpected type")
	}
	total, ok := out[1].([]*big.Int)
	if !ok {
		return nil, errors.New("market: getOutcomes totalShares have unexpected type")
	}
	available, ok := out[2].([]*big.Int)
	if !ok {
		return nil, errors.New("market: getOutcomes availableShares have unexpected type")
	}
	return &outcomes{names: names, totalShares: total, availableShares: available}, nil
}

// OutcomeCount returns the number of outcomes (always 2 for deployed
// markets, but read from the contract rather than assumed).
func (c *Client) OutcomeCount(ctx context.Context) (int, error) {
	o, err := c.outcomes(ctx)
	if err != nil {
		return 0, err
	}
	return len(o.names), nil
}

// State reads and decodes the market lifecycle state.
func (c *Client) State(ctx context.Context) (domain.MarketState, error) {
	out, err := c.binding.Call(ctx, "state")
	if err != nil {
		return 0, err
	}
	raw, ok := out[0].(uint8)
	if !ok {
		return 0, errors.New("market: state has unexpected type")
	}
	return domain.ParseMarketState(raw)
}

// ResolvedOutcome returns the winning outcome index, or nil when the market
// is not yet resolved. This is the one place a revert is a valid "no value
// yet" signal; transport errors still propagate.
func (c *Client) ResolvedOutcome(ctx context.Context) (*uint64, error) {
	out, err := c.binding.Call(ctx, "getResolvedOutcomeIndex")
	if err != nil {
		var domainErr *domain.DomainRevertError
		var unmatchedErr *domain.UnmatchedRevertError
		if errors.As(err, &domainErr) || errors.As(err, &unmatchedErr) {
			return nil, nil
		}
		return nil, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("market: resolved outcome has unexpected type")
	}
	idx := raw.Uint64()
	return &idx, nil
}

// OutcomePrice reads the live normalized price of one outcome, in PriceScale
// fixed point.
func (c *Client) OutcomePrice(ctx context.Context, outcomeIndex uint64) (*big.Int, error) {
	return c.callBig(ctx, "getOutcomePrice", new(big.Int).SetUint64(outcomeIndex))
}

// UserOutcomeShares reads a user's share balance for one outcome.
func (c *Client) UserOutcomeShares(ctx context.Context, user common.Address, outcomeIndex uint64) (*big.Int, error) {
	return c.callBig(ctx, "getUserOutcomeShares", user, new(big.Int).SetUint64(outcomeIndex))
}

// UserLiquidityShares reads a user's liquidity-share balance.
func (c *Client) UserLiquidityShares(ctx context.Context, user common.Address) (*big.Int, error) {
	return c.callBig(ctx, "getUserLiquidityShares", user)
}

// ClaimableFees reads the fees currently claimable by a user.
func (c *Client) ClaimableFees(ctx context.Context, user common.Address) (*big.Int, error) {
	return c.callBig(ctx, "getClaimableFees", user)
}

// Oracle returns a client for the market's resolution oracle, sharing the
// market's backend and signer.
func (c *Client) Oracle(ctx context.Context) (*oracle.Client, error) {
	addr, err := c.callAddress(ctx, "oracle")
	if err != nil {
		return nil, err
	}
	return oracle.NewClient(c.binding.Backend(), c.binding.Signer(), addr), nil
}

// Info assembles the market snapshot from its individual view calls. The
// reads run concurrently and the composite fails as a whole if any sub-call
// fails; a half-populated snapshot is never returned.
func (c *Client) Info(ctx context.Context) (*domain.MarketInfo, error) {
	info := &domain.MarketInfo{Address: c.Address()}

	var (
		closeTime, createTime, closedAt *big.Int
		feeBPS, resolveDelay            *big.Int
		state                           domain.MarketState
		resolved                        *uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info.Question, err = c.callString(gctx, "question")
		return err
	})
	g.Go(func() (err error) {
		o, err := c.outcomes(gctx)
		if err != nil {
			return err
		}
		info.OutcomeNames = o.names
		return nil
	})
	g.Go(func() (err error) {
		closeTime, err = c.callBig(gctx, "closeTime")
		return err
	})
	g.Go(func() (err error) {
		createTime, err = c.callBig(gctx, "createTime")
		return err
	})
	g.Go(func() (err error) {
		closedAt, err = c.callBig(gctx, "closedAt")
		return err
	})
	g.Go(func() (err error) {
		feeBPS, err = c.callBig(gctx, "feeBPS")
		return err
	})
	g.Go(func() (err error) {
		resolveDelay, err = c.callBig(gctx, "resolveDelay")
		return err
	})
	g.Go(func() (err error) {
		state, err = c.State(gctx)
		return err
	})
	g.Go(func() (err error) {
		resolved, err = c.ResolvedOutcome(gctx)
		return err
	})
	g.Go(func() (err error) {
		info.Creator, err = c.callAddress(gctx, "creator")
		return err
	})
	g.Go(func() (err error) {
		info.Oracle, err = c.callAddress(gctx, "oracle")
		return err
	})
	g.Go(func() (err error) {
		info.AMM, err = c.callAddress(gctx, "marketAMM")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	info.CloseTime = time.Unix(closeTime.Int64(), 0).UTC()
	info.CreateTime = time.Unix(createTime.Int64(), 0).UTC()
	if closedAt.Sign() > 0 {
		t := time.Unix(closedAt.Int64(), 0).UTC()
		info.ClosedAt = &t
	}
	info.FeeBPS = feeBPS.Uint64()
	info.ResolveDelay = time.Duration(resolveDelay.Int64()) * time.Second
	info.State = state
	info.ResolvedOutcome = resolved
	return info, nil
}

// FullInfo extends Info with pool state and live outcome prices, with the
// same all-or-nothing composition.
func (c *Client) FullInfo(ctx context.Context) (*domain.FullMarketInfo, error) {
	full := &domain.FullMarketInfo{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := c.Info(gctx)
		if err != nil {
			return err
		}
		full.MarketInfo = *info
		return nil
	})
	g.Go(func() error {
		pool, err := c.PoolData(gctx)
		if err != nil {
			return err
		}
		full.Pool = *pool
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prices := make([]*big.Int, len(full.Pool.Outcomes))
	pg, pctx := errgroup.WithContext(ctx)
	for i := range prices {
		pg.Go(func() (err error) {
			prices[i], err = c.OutcomePrice(pctx, uint64(i))
			return err
		})
	}
	if err := pg.Wait(); err != nil {
		return nil, err
	}
	full.OutcomePrices = prices
	return full, nil
}

// PoolData reads the pool aggregates together with the per-outcome ledgers.
func (c *Client) PoolData(ctx context.Context) (*domain.PoolData, error) {
	var (
		pool *domain.PoolData
		o    *outcomes
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := c.binding.Call(gctx, "getPoolData")
		if err != nil {
			return err
		}
		if len(out) != 3 {
			return fmt.Errorf("market: getPoolData returned %d values", len(out))
		}
		balance, ok1 := out[0].(*big.Int)
		liquidity, ok2 := out[1].(*big.Int)
		available, ok3 := out[2].(*big.Int)
		if !ok1 || !ok2 || !ok3 {
			return errors.New("market: getPoolData values have unexpected type")
		}
		pool = &domain.PoolData{
			Balance:              balance,
			Liquidity:            liquidity,
			TotalAvailableShares: available,
		}
		return nil
	})
	g.Go(func() (err error) {
		o, err = c.outcomes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pool.Outcomes = make([]domain.OutcomePool, len(o.names))
	for i, name := range o.names {
		pool.Outcomes[i] = domain.OutcomePool{
			Name:            name,
			TotalShares:     o.totalShares[i],
			AvailableShares: o.availableShares[i],
		}
	}
	return pool, nil
}

// Snapshot reads the point-in-time pool state the AMM quote functions take as
// input. Quotes must be computed against a current snapshot; a stale one
// produces a stale quote.
func (c *Client) Snapshot(ctx context.Context) (*domain.PoolSnapshot, error) {
	pool, err := c.PoolData(ctx)
	if err != nil {
		return nil, err
	}

	shares := make([]*big.Int, len(pool.Outcomes))
	for i, outcome := range pool.Outcomes {
		shares[i] = outcome.AvailableShares
	}
	return &domain.PoolSnapshot{
		Liquidity:     pool.Liquidity,
		OutcomeShares: shares,
	}, nil
}

func (c *Client) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.binding.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("market: %s result has unexpected type", method)
	}
	return v, nil
}

func (c *Client) callString(ctx context.Context, method string) (string, error) {
	out, err := c.binding.Call(ctx, method)
	if err != nil {
		return "", err
	}
	v, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("market: %s result has unexpected type", method)
	}
	return v, nil
}

func (c *Client) callAddress(ctx context.Context, method string) (common.Address, error) {
	out, err := c.binding.Call(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("market: %s result has unexpected type", method)
	}
	return v, nil
}
