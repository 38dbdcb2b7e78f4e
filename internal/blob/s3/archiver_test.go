package s3blob

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/predict-go/internal/domain"
)

func TestArchivePath(t *testing.T) {
	cutoff := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/trade_events/2026-08.jsonl", archivePath("trade_events", cutoff))

	january := time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/trade_events/2027-01.jsonl", archivePath("trade_events", january))
}

func TestMarshalJSONL(t *testing.T) {
	events := []domain.TradeEvent{
		{
			ChainID:      84532,
			Market:       common.HexToAddress("0xaaa"),
			Trader:       common.HexToAddress("0x111"),
			Side:         domain.TradeSideBuy,
			OutcomeIndex: 0,
			Shares:       big.NewInt(10),
			Amount:       big.NewInt(6),
			Fee:          big.NewInt(1),
			BlockNumber:  80,
		},
		{
			ChainID: 84532,
			Side:    domain.TradeSideSell,
			Shares:  big.NewInt(4),
			Amount:  big.NewInt(3),
			Fee:     big.NewInt(0),
		},
	}

	buf, err := marshalJSONL(events)
	require.NoError(t, err)

	out := string(buf)
	require.True(t, strings.HasSuffix(out, "\n"), "output must end with a newline")

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"side":"buy"`)
	assert.Contains(t, lines[0], `"block_number":80`)
	assert.Contains(t, lines[1], `"side":"sell"`)

	// One record per line, no pretty printing.
	for _, line := range lines {
		assert.NotContains(t, line, "\n")
		assert.True(t, strings.HasPrefix(line, "{"))
	}
}

func TestMarshalJSONLEmpty(t *testing.T) {
	buf, err := marshalJSONL([]domain.TradeEvent{})
	require.NoError(t, err)
	assert.Empty(t, buf)
}
