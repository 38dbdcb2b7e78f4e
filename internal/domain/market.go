package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceScale is the fixed-point scale for normalized prices. A price of
// 1.0 (a certain outcome) is represented as 1e18, matching the contract's
// internal price space.
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// MarketState is the market lifecycle enum as stored on-chain. The state
// machine is strictly linear: Open -> Closed -> Resolved, no back-transitions.
type MarketState uint8

const (
	MarketStateOpen     MarketState = 0
	MarketStateClosed   MarketState = 1
	MarketStateResolved MarketState = 2
)

// String returns the lowercase name of the state.
func (s MarketState) String() string {
	switch s {
	case MarketStateOpen:
		return "open"
	case MarketStateClosed:
		return "closed"
	case MarketStateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseMarketState decodes the raw on-chain enum value. Any value outside the
// three known states is a fatal decode error.
func ParseMarketState(v uint8) (MarketState, error) {
	switch MarketState(v) {
	case MarketStateOpen, MarketStateClosed, MarketStateResolved:
		return MarketState(v), nil
	default:
		return 0, fmt.Errorf("invalid market state: %d", v)
	}
}

// MarketInfo is the composed read-side snapshot of a deployed market.
type MarketInfo struct {
	Address      common.Address `json:"address"`
	Question     string         `json:"question"`
	OutcomeNames []string       `json:"outcome_names"`
	CloseTime    time.Time      `json:"close_time"`
	CreateTime   time.Time      `json:"create_time"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	ResolveDelay time.Duration  `json:"resolve_delay"`
	FeeBPS       uint64         `json:"fee_bps"`
	State        MarketState    `json:"state"`
	// ResolvedOutcome is nil until the market is resolved.
	ResolvedOutcome *uint64        `json:"resolved_outcome,omitempty"`
	Creator         common.Address `json:"creator"`
	Oracle          common.Address `json:"oracle"`
	AMM             common.Address `json:"amm"`
}

// OutcomePool is the per-outcome share ledger of the pool.
// Invariant: AvailableShares <= TotalShares.
type OutcomePool struct {
	Name            string   `json:"name"`
	TotalShares     *big.Int `json:"total_shares"`
	AvailableShares *big.Int `json:"available_shares"`
}

// PoolData is the market pool snapshot, denominated in the smallest native
// currency unit.
type PoolData struct {
	Balance              *big.Int      `json:"balance"`
	Liquidity            *big.Int      `json:"liquidity"`
	TotalAvailableShares *big.Int      `json:"total_available_shares"`
	Outcomes             []OutcomePool `json:"outcomes"`
}

// FullMarketInfo bundles the market snapshot with pool state and current
// outcome prices. It is assembled all-or-nothing: a failure of any sub-read
// fails the whole composite.
type FullMarketInfo struct {
	MarketInfo
	Pool          PoolData   `json:"pool"`
	OutcomePrices []*big.Int `json:"outcome_prices"`
}

// PoolSnapshot is the point-in-time pool state the AMM quote functions
// operate on. Quotes computed against a stale snapshot are stale quotes; the
// caller is responsible for supplying current values.
type PoolSnapshot struct {
	Liquidity     *big.Int
	OutcomeShares []*big.Int
}

// LiquidityQuote is the result of an add-liquidity simulation.
type LiquidityQuote struct {
	LiquidityShares *big.Int
}
