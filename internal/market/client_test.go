package market

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
)

var errNotImplemented = errors.New("not implemented")

// fakeBackend serves eth_call and log queries from hooks; everything else
// fails loudly.
type fakeBackend struct {
	callContract func(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	filterLogs   func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	latestBlock  uint64
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callContract == nil {
		return nil, errNotImplemented
	}
	return f.callContract(ctx, call, blockNumber)
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if f.filterLogs == nil {
		return nil, errNotImplemented
	}
	return f.filterLogs(ctx, q)
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.latestBlock, nil }

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

// packOutputs encodes the return values of one market view method.
func packOutputs(t *testing.T, contractABI abi.ABI, method string, outs ...any) []byte {
	t.Helper()
	m, ok := contractABI.Methods[method]
	require.True(t, ok, "method %s not in ABI", method)
	data, err := m.Outputs.Pack(outs...)
	require.NoError(t, err)
	return data
}

// tradeLog builds a SharesBought or SharesSold log with the given fields.
func tradeLog(t *testing.T, event string, marketAddr, trader common.Address, outcome, shares, amount, fee int64, block uint64, logIndex uint) types.Log {
	t.Helper()
	ev := contract.Market.Events[event]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(shares), big.NewInt(amount), big.NewInt(fee))
	require.NoError(t, err)
	return types.Log{
		Address: marketAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(trader.Bytes()),
			common.BigToHash(big.NewInt(outcome)),
		},
		Data:        data,
		BlockNumber: block,
		Index:       logIndex,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*1000 + int64(logIndex))),
	}
}

func TestExecutedPrice(t *testing.T) {
	// Zero or nil shares must not divide.
	assert.Zero(t, executedPrice(big.NewInt(10), nil).Sign())
	assert.Zero(t, executedPrice(big.NewInt(10), big.NewInt(0)).Sign())

	// Scaling happens before the division: 1/3 keeps 18 digits.
	third := executedPrice(big.NewInt(1), big.NewInt(3))
	assert.Equal(t, "333333333333333333", third.String())

	half := executedPrice(big.NewInt(2), big.NewInt(4))
	assert.Equal(t, "500000000000000000", half.String())
}

func TestCheckDeadline(t *testing.T) {
	require.NoError(t, checkDeadline(time.Now().Add(time.Minute)))

	past := time.Now().Add(-time.Minute)
	err := checkDeadline(past)
	var expired *domain.ExpiredDeadlineError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, past, expired.Deadline)
}

func TestDiffBalances(t *testing.T) {
	before := []*big.Int{big.NewInt(10), big.NewInt(5)}
	after := []*big.Int{big.NewInt(7), big.NewInt(9)}

	deltas := diffBalances(before, after)
	require.Len(t, deltas, 2)
	assert.Equal(t, int64(-3), deltas[0].Int64())
	assert.Equal(t, int64(4), deltas[1].Int64())
}

func TestTradesNormalizationAndOrdering(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")
	alice := common.HexToAddress("0x1111")
	bob := common.HexToAddress("0x2222")

	boughtID := contract.Market.Events["SharesBought"].ID
	soldID := contract.Market.Events["SharesSold"].ID

	buys := []types.Log{
		tradeLog(t, "SharesBought", marketAddr, alice, 0, 10, 6, 1, 20, 3),
		tradeLog(t, "SharesBought", marketAddr, bob, 1, 5, 4, 0, 10, 7),
	}
	sells := []types.Log{
		tradeLog(t, "SharesSold", marketAddr, alice, 0, 4, 3, 0, 10, 2),
	}

	backend := &fakeBackend{
		latestBlock: 100,
		filterLogs: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			switch q.Topics[0][0] {
			case boughtID:
				return buys, nil
			case soldID:
				return sells, nil
			}
			return nil, nil
		},
	}

	c := NewClient(backend, nil, marketAddr, nil)
	trades, err := c.Trades(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	// Block 10 log 2 (sell), block 10 log 7 (buy), block 20 log 3 (buy).
	assert.Equal(t, domain.TradeSideSell, trades[0].Side)
	assert.Equal(t, alice, trades[0].Trader)
	assert.Equal(t, uint(2), trades[0].LogIndex)

	assert.Equal(t, domain.TradeSideBuy, trades[1].Side)
	assert.Equal(t, bob, trades[1].Trader)
	assert.Equal(t, uint64(1), trades[1].OutcomeIndex)
	assert.Equal(t, int64(5), trades[1].Shares.Int64())
	assert.Equal(t, int64(4), trades[1].Amount.Int64())

	assert.Equal(t, uint64(20), trades[2].BlockNumber)
	assert.Equal(t, int64(1), trades[2].Fee.Int64())
	assert.Equal(t, marketAddr, trades[2].Market)
}

func TestPosition(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")
	user := common.HexToAddress("0x1111")

	halfPrice := new(big.Int).Div(domain.PriceScale, big.NewInt(2)) // 0.5

	boughtID := contract.Market.Events["SharesBought"].ID
	soldID := contract.Market.Events["SharesSold"].ID

	backend := &fakeBackend{
		latestBlock: 100,
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			method, err := contract.Market.MethodById(call.Data[:4])
			require.NoError(t, err)
			switch method.Name {
			case "getOutcomes":
				return packOutputs(t, contract.Market, "getOutcomes",
					[]string{"Yes", "No"},
					[]*big.Int{big.NewInt(100), big.NewInt(100)},
					[]*big.Int{big.NewInt(80), big.NewInt(80)},
				), nil
			case "getOutcomePrice":
				return packOutputs(t, contract.Market, "getOutcomePrice", halfPrice), nil
			}
			return nil, errNotImplemented
		},
		filterLogs: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			switch q.Topics[0][0] {
			case boughtID:
				// 10 shares of Yes for 6, of which 1 is fee.
				return []types.Log{tradeLog(t, "SharesBought", marketAddr, user, 0, 10, 6, 1, 10, 0)}, nil
			case soldID:
				// 4 of those back for 3 (net of fee).
				return []types.Log{tradeLog(t, "SharesSold", marketAddr, user, 0, 4, 3, 0, 20, 0)}, nil
			}
			return nil, nil
		},
	}

	c := NewClient(backend, nil, marketAddr, nil)
	pos, err := c.Position(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, pos.Outcomes, 2)

	yes := pos.Outcomes[0]
	assert.Equal(t, int64(6), yes.Shares.Int64())
	assert.Equal(t, int64(5), yes.OpenVolume.Int64()) // 6 paid - 1 fee
	assert.Equal(t, int64(3), yes.ClosingVolume.Int64())
	// 6 held shares at 0.5 are worth 3; 3 + 3 - 5 = 1.
	assert.Equal(t, int64(1), yes.PnL.Int64())
	assert.InDelta(t, 20.0, yes.PnLPercent, 1e-9)
	// avg entry = 5 / 10 = 0.5 in fixed point.
	assert.Equal(t, halfPrice, yes.AvgEntryPrice)

	no := pos.Outcomes[1]
	assert.Zero(t, no.Shares.Sign())
	assert.Zero(t, no.PnL.Sign())
	assert.Zero(t, no.PnLPercent)
	assert.Zero(t, no.AvgEntryPrice.Sign())
}

func TestPositionRejectsUnknownOutcome(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")
	user := common.HexToAddress("0x1111")

	backend := &fakeBackend{
		latestBlock: 100,
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			method, err := contract.Market.MethodById(call.Data[:4])
			require.NoError(t, err)
			switch method.Name {
			case "getOutcomes":
				return packOutputs(t, contract.Market, "getOutcomes",
					[]string{"Yes", "No"},
					[]*big.Int{big.NewInt(0), big.NewInt(0)},
					[]*big.Int{big.NewInt(0), big.NewInt(0)},
				), nil
			case "getOutcomePrice":
				return packOutputs(t, contract.Market, "getOutcomePrice", big.NewInt(0)), nil
			}
			return nil, errNotImplemented
		},
		filterLogs: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			if q.Topics[0][0] == contract.Market.Events["SharesBought"].ID {
				// Outcome index 5 does not exist in a binary market.
				return []types.Log{tradeLog(t, "SharesBought", marketAddr, user, 5, 1, 1, 0, 10, 0)}, nil
			}
			return nil, nil
		},
	}

	c := NewClient(backend, nil, marketAddr, nil)
	_, err := c.Position(context.Background(), user)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown outcome")
}

func TestQuoteBuySharesDelegatesToAMM(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")
	ammAddr := common.HexToAddress("0xbbb")

	liquidity := big.NewInt(1000)
	yesShares := big.NewInt(900)
	noShares := big.NewInt(1100)

	backend := &fakeBackend{}
	backend.callContract = func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		if *call.To == ammAddr {
			method, err := contract.MarketAMM.MethodById(call.Data[:4])
			require.NoError(t, err)
			require.Equal(t, "getBuyShares", method.Name)

			args, err := method.Inputs.Unpack(call.Data[4:])
			require.NoError(t, err)
			assert.Equal(t, liquidity, args[0])
			assert.Equal(t, []*big.Int{yesShares, noShares}, args[1])
			assert.Equal(t, int64(0), args[2].(*big.Int).Int64())
			assert.Equal(t, int64(50), args[3].(*big.Int).Int64())

			return packOutputs(t, contract.MarketAMM, "getBuyShares", big.NewInt(42)), nil
		}

		method, err := contract.Market.MethodById(call.Data[:4])
		require.NoError(t, err)
		switch method.Name {
		case "marketAMM":
			return packOutputs(t, contract.Market, "marketAMM", ammAddr), nil
		case "getPoolData":
			return packOutputs(t, contract.Market, "getPoolData",
				big.NewInt(2000), liquidity, big.NewInt(2000)), nil
		case "getOutcomes":
			return packOutputs(t, contract.Market, "getOutcomes",
				[]string{"Yes", "No"},
				[]*big.Int{big.NewInt(1000), big.NewInt(1000)},
				[]*big.Int{yesShares, noShares},
			), nil
		}
		return nil, errNotImplemented
	}

	c := NewClient(backend, nil, marketAddr, nil)
	shares, err := c.QuoteBuyShares(context.Background(), 0, big.NewInt(50))
	require.NoError(t, err)
	assert.Equal(t, int64(42), shares.Int64())
}

func TestOracle(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")
	oracleAddr := common.HexToAddress("0xccc")

	backend := &fakeBackend{
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			method, err := contract.Market.MethodById(call.Data[:4])
			require.NoError(t, err)
			require.Equal(t, "oracle", method.Name)
			return packOutputs(t, contract.Market, "oracle", oracleAddr), nil
		},
	}

	c := NewClient(backend, nil, marketAddr, nil)
	o, err := c.Oracle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oracleAddr, o.Address())
}

func TestResolveMarketRequiresOracleOutcome(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")
	oracleAddr := common.HexToAddress("0xccc")

	backend := &fakeBackend{
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			if *call.To == oracleAddr {
				method, err := contract.Oracle.MethodById(call.Data[:4])
				require.NoError(t, err)
				require.Equal(t, "isResolved", method.Name)
				return packOutputs(t, contract.Oracle, "isResolved", false), nil
			}
			return packOutputs(t, contract.Market, "oracle", oracleAddr), nil
		},
	}

	// An unresolved oracle stops resolution before any transaction is built;
	// the fake backend would fail loudly on a submission attempt.
	c := NewClient(backend, nil, marketAddr, nil)
	_, err := c.ResolveMarket(context.Background())
	require.ErrorIs(t, err, domain.ErrOracleUnresolved)
	assert.Contains(t, err.Error(), marketAddr.Hex())
}

func TestResolvedOutcomeRevertMeansUnresolved(t *testing.T) {
	marketAddr := common.HexToAddress("0xaaa")

	calls := 0
	backend := &fakeBackend{
		callContract: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
			calls++
			if calls == 1 {
				return nil, &revertStub{}
			}
			return nil, errors.New("connection reset")
		},
	}

	c := NewClient(backend, nil, marketAddr, nil)

	// A revert means the market has no resolved outcome yet.
	idx, err := c.ResolvedOutcome(context.Background())
	require.NoError(t, err)
	assert.Nil(t, idx)

	// A transport error still propagates.
	_, err = c.ResolvedOutcome(context.Background())
	require.Error(t, err)
}

// revertStub mimics a JSON-RPC revert carrying Error("not resolved").
type revertStub struct{}

func (e *revertStub) Error() string { return "execution reverted" }

func (e *revertStub) ErrorData() any {
	arg, _ := abi.NewType("string", "", nil)
	payload, _ := abi.Arguments{{Type: arg}}.Pack("not resolved")
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)
}
