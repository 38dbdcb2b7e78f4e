package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OutcomePosition is the reconstructed position for one outcome. All values
// come from replaying the user's trade events plus a live mark price; nothing
// here is stored on-chain as a single value, and the client never persists it.
type OutcomePosition struct {
	OutcomeIndex uint64 `json:"outcome_index"`
	// Shares is the net share balance after all buys and sells.
	Shares *big.Int `json:"shares"`
	// OpenVolume is the currency committed on buys, net of fees.
	OpenVolume *big.Int `json:"open_volume"`
	// ClosingVolume is the currency received from sells.
	ClosingVolume *big.Int `json:"closing_volume"`
	// AvgEntryPrice is OpenVolume/sharesBought in PriceScale fixed point;
	// zero when the user never bought this outcome.
	AvgEntryPrice *big.Int `json:"avg_entry_price"`
	// CurrentPrice is the live mark price in PriceScale fixed point.
	CurrentPrice *big.Int `json:"current_price"`
	// PnL is ClosingVolume + Shares*CurrentPrice - OpenVolume: total value
	// extracted or currently held, minus total value committed. Realized and
	// unrealized gains in one figure.
	PnL *big.Int `json:"pnl"`
	// PnLPercent is PnL/OpenVolume*100, zero when OpenVolume is zero.
	PnLPercent float64 `json:"pnl_percent"`
}

// Position is a user's full reconstructed position in one market.
type Position struct {
	Market   common.Address    `json:"market"`
	User     common.Address    `json:"user"`
	Outcomes []OutcomePosition `json:"outcomes"`
}
