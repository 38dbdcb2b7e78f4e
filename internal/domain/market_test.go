package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarketState(t *testing.T) {
	for raw, want := range map[uint8]MarketState{
		0: MarketStateOpen,
		1: MarketStateClosed,
		2: MarketStateResolved,
	} {
		got, err := ParseMarketState(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMarketState(3)
	require.Error(t, err)
	assert.EqualError(t, err, "invalid market state: 3")
}

func TestMarketStateString(t *testing.T) {
	assert.Equal(t, "open", MarketStateOpen.String())
	assert.Equal(t, "closed", MarketStateClosed.String())
	assert.Equal(t, "resolved", MarketStateResolved.String())
	assert.Equal(t, "unknown(7)", MarketState(7).String())
}

func TestErrorMessages(t *testing.T) {
	deadline := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	assert.EqualError(t, &ExpiredDeadlineError{Deadline: deadline},
		"deadline 2026-08-28T12:00:00Z has already passed")

	assert.EqualError(t, &MissingEventError{Event: "SharesBought"},
		"SharesBought event not found")

	assert.EqualError(t, &DomainRevertError{Name: "OnlyOwner", Message: "Caller is not the factory owner"},
		"Caller is not the factory owner")

	assert.EqualError(t, &UnmatchedRevertError{}, "execution reverted")
	assert.EqualError(t, &UnmatchedRevertError{Reason: "whoops"}, "execution reverted: whoops")
}

func TestPriceScale(t *testing.T) {
	assert.Equal(t, "1000000000000000000", PriceScale.String())
}
