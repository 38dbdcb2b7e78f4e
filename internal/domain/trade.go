package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeSide distinguishes the two trade event kinds.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeEvent is one SharesBought or SharesSold log, normalized. For buys,
// Amount is the currency paid (gross, before fee); for sells, Amount is the
// currency received (already net of fee).
type TradeEvent struct {
	// ChainID is set by the indexer; zero when the event comes straight from
	// a log scan.
	ChainID      uint64         `json:"chain_id,omitempty"`
	Market       common.Address `json:"market"`
	Trader       common.Address `json:"trader"`
	Side         TradeSide      `json:"side"`
	OutcomeIndex uint64         `json:"outcome_index"`
	Shares       *big.Int       `json:"shares"`
	Amount       *big.Int       `json:"amount"`
	Fee          *big.Int       `json:"fee"`
	BlockNumber  uint64         `json:"block_number"`
	TxHash       common.Hash    `json:"tx_hash"`
	LogIndex     uint           `json:"log_index"`
	// Timestamp is the block timestamp; populated by the indexer, zero when
	// the event comes straight from a log scan.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TradeResult carries the authoritative outputs of a buy or sell, extracted
// from the emitted event (never from client-side pre-submission math).
type TradeResult struct {
	OutcomeIndex uint64   `json:"outcome_index"`
	Shares       *big.Int `json:"shares"`
	Amount       *big.Int `json:"amount"`
	Fee          *big.Int `json:"fee"`
	AmountNet    *big.Int `json:"amount_net"`
	// ExecutedPrice is AmountNet/Shares in PriceScale fixed point,
	// scaled before the division to avoid precision loss.
	ExecutedPrice *big.Int    `json:"executed_price"`
	TxHash        common.Hash `json:"tx_hash"`
	BlockNumber   uint64      `json:"block_number"`
}

// LiquidityResult carries the outputs of an add/remove liquidity call. The
// event only reports the liquidity-share count; the per-outcome share deltas
// are derived by diffing the caller's balances immediately before and after
// the transaction.
type LiquidityResult struct {
	LiquidityShares    *big.Int    `json:"liquidity_shares"`
	Amount             *big.Int    `json:"amount"`
	OutcomeShareDeltas []*big.Int  `json:"outcome_share_deltas"`
	TxHash             common.Hash `json:"tx_hash"`
	BlockNumber        uint64      `json:"block_number"`
}

// ClaimResult carries the payout of a fee/liquidity/reward claim.
type ClaimResult struct {
	Amount      *big.Int    `json:"amount"`
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
}
