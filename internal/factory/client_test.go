package factory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
)

var errNotImplemented = errors.New("not implemented")

// fakeBackend serves log queries from a hook; everything else fails loudly.
type fakeBackend struct {
	filterLogs  func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	latestBlock uint64
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if f.filterLogs == nil {
		return nil, errNotImplemented
	}
	return f.filterLogs(ctx, q)
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.latestBlock, nil }

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errNotImplemented
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, errNotImplemented
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return nil, errNotImplemented
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return nil, errNotImplemented
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errNotImplemented
}

func (f *fakeBackend) SendTransaction(context.Context, *types.Transaction) error {
	return errNotImplemented
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, errNotImplemented
}

func (f *fakeBackend) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	return nil, errNotImplemented
}

// marketCreatedLog builds a MarketCreated log for one creator/market pair.
func marketCreatedLog(t *testing.T, factoryAddr, creator, marketAddr common.Address, index int64, block uint64) types.Log {
	t.Helper()
	ev := contract.Factory.Events["MarketCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(index))
	require.NoError(t, err)
	return types.Log{
		Address: factoryAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(creator.Bytes()),
			common.BytesToHash(marketAddr.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
	}
}

func validArgs() CreateMarketArgs {
	return CreateMarketArgs{
		Question:            "Will it rain tomorrow?",
		OutcomeNames:        []string{"Yes", "No"},
		CloseTime:           time.Now().Add(24 * time.Hour),
		InitialLiquidity:    big.NewInt(1_000_000),
		ResolveDelaySeconds: 3600,
		FeeBPS:              200,
	}
}

func TestCreateMarketArgsValid(t *testing.T) {
	require.NoError(t, validArgs().validate())
}

func TestCreateMarketArgsQuestionLength(t *testing.T) {
	args := validArgs()

	args.Question = "Rain??" // exactly 6 runes: too short
	err := args.validate()
	require.Error(t, err)
	assert.EqualError(t, err, "Question must be longer than 6 characters")

	args.Question = "Rain???" // 7 runes passes
	require.NoError(t, args.validate())

	// Rune count, not byte count.
	args.Question = "雨が降りますか" // 7 runes, 21 bytes
	require.NoError(t, args.validate())
}

func TestCreateMarketArgsOutcomeCount(t *testing.T) {
	for _, outcomes := range [][]string{
		nil,
		{"Yes"},
		{"Yes", "No", "Maybe"},
	} {
		args := validArgs()
		args.OutcomeNames = outcomes
		err := args.validate()
		require.Error(t, err)
		assert.EqualError(t, err, "Only binary markets are supported")
	}
}

func TestCreateMarketArgsCloseTime(t *testing.T) {
	args := validArgs()
	args.CloseTime = time.Now().Add(-time.Minute)
	err := args.validate()
	require.Error(t, err)
	assert.EqualError(t, err, "Close time must be greater than current time")

	// CloseTimeUnix is used when CloseTime is zero.
	args = validArgs()
	args.CloseTime = time.Time{}
	args.CloseTimeUnix = time.Now().Add(time.Hour).Unix()
	require.NoError(t, args.validate())

	args.CloseTimeUnix = time.Now().Add(-time.Hour).Unix()
	assert.Error(t, args.validate())
}

func TestCreateMarketArgsInitialLiquidity(t *testing.T) {
	args := validArgs()
	args.InitialLiquidity = nil
	err := args.validate()
	require.Error(t, err)
	assert.EqualError(t, err, "Initial liquidity must be greater than 0")

	args.InitialLiquidity = big.NewInt(-1)
	assert.Error(t, args.validate())

	// Zero is let through; the contract decides.
	args.InitialLiquidity = big.NewInt(0)
	assert.NoError(t, args.validate())
}

func TestCreateMarketArgsResolveDelay(t *testing.T) {
	cases := []struct {
		delay int64
		ok    bool
	}{
		{59, false},
		{60, true},
		{604_800, true},
		{604_801, false},
	}
	for _, tc := range cases {
		args := validArgs()
		args.ResolveDelaySeconds = tc.delay
		err := args.validate()
		if tc.ok {
			assert.NoError(t, err, "delay %d", tc.delay)
		} else {
			require.Error(t, err, "delay %d", tc.delay)
			assert.EqualError(t, err, "Resolve delay must be between 60 and 604800 seconds")
		}
	}
}

func TestCreateMarketArgsFeeBPS(t *testing.T) {
	cases := []struct {
		fee int64
		ok  bool
	}{
		{-1, false},
		{0, true},
		{10_000, true},
		{10_001, false},
	}
	for _, tc := range cases {
		args := validArgs()
		args.FeeBPS = tc.fee
		err := args.validate()
		if tc.ok {
			assert.NoError(t, err, "fee %d", tc.fee)
		} else {
			require.Error(t, err, "fee %d", tc.fee)
			assert.EqualError(t, err, "Fee must be between 0 and 10000 basis points")
		}
	}
}

func TestUserCreatedMarkets(t *testing.T) {
	factoryAddr := common.HexToAddress("0xfac")
	alice := common.HexToAddress("0x1111")
	marketA := common.HexToAddress("0xaaa")
	marketB := common.HexToAddress("0xbbb")

	backend := &fakeBackend{
		latestBlock: 100,
		filterLogs: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			// The scan starts at the factory's deployment block and filters
			// on the indexed creator.
			assert.Equal(t, uint64(10), q.FromBlock.Uint64())
			assert.Equal(t, []common.Address{factoryAddr}, q.Addresses)
			require.Len(t, q.Topics, 2)
			require.Len(t, q.Topics[1], 1)
			assert.Equal(t, common.BytesToHash(alice.Bytes()), q.Topics[1][0])

			return []types.Log{
				marketCreatedLog(t, factoryAddr, alice, marketA, 0, 15),
				marketCreatedLog(t, factoryAddr, alice, marketB, 2, 40),
			}, nil
		},
	}

	c := NewClient(backend, nil, factoryAddr, nil)
	c.Binding().SetStartBlock(10)

	markets, err := c.UserCreatedMarkets(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	assert.Equal(t, marketA, markets[0].Address())
	assert.Equal(t, marketB, markets[1].Address())

	// Each handle's history scans start at its creation block.
	assert.Equal(t, uint64(15), markets[0].Binding().StartBlock())
	assert.Equal(t, uint64(40), markets[1].Binding().StartBlock())
}

func TestUserCreatedMarketsNone(t *testing.T) {
	factoryAddr := common.HexToAddress("0xfac")

	backend := &fakeBackend{
		latestBlock: 100,
		filterLogs: func(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
			return nil, nil
		},
	}

	c := NewClient(backend, nil, factoryAddr, nil)
	markets, err := c.UserCreatedMarkets(context.Background(), common.HexToAddress("0x2222"))
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestValidationErrorType(t *testing.T) {
	args := validArgs()
	args.FeeBPS = -1

	var verr *domain.ValidationError
	require.ErrorAs(t, args.validate(), &verr)
}
