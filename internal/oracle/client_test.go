package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
)

var errNotImplemented = errors.New("not implemented")

// fakeBackend serves eth_call from a hook; everything else fails loudly.
type fakeBackend struct {
	callContract func(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callContract == nil {
		return nil, errNotImplemented
	}
	return f.callContract(ctx, call, blockNumber)
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

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, errNotImplemented
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return 0, errNotImplemented
}

func (f *fakeBackend) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	return nil, errNotImplemented
}

// packOutputs encodes the return values of one oracle view method.
func packOutputs(t *testing.T, method string, outs ...any) []byte {
	t.Helper()
	m, ok := contract.Oracle.Methods[method]
	require.True(t, ok, "method %s not in ABI", method)
	data, err := m.Outputs.Pack(outs...)
	require.NoError(t, err)
	return data
}

// revertStub mimics a JSON-RPC revert carrying one custom error.
type revertStub struct {
	data []byte
}

func (e *revertStub) Error() string  { return "execution reverted" }
func (e *revertStub) ErrorData() any { return e.data }

// outcomeNotSetRevert builds the OutcomeNotSet custom-error payload.
func outcomeNotSetRevert(t *testing.T) *revertStub {
	t.Helper()
	errDef, ok := contract.Oracle.Errors["OutcomeNotSet"]
	require.True(t, ok)
	return &revertStub{data: errDef.ID[:4]}
}

func TestOutcome(t *testing.T) {
	backend := &fakeBackend{
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			method, err := contract.Oracle.MethodById(call.Data[:4])
			require.NoError(t, err)
			require.Equal(t, "getOutcome", method.Name)
			return packOutputs(t, "getOutcome", big.NewInt(1)), nil
		},
	}

	c := NewClient(backend, nil, common.HexToAddress("0xccc"))
	idx, err := c.Outcome(context.Background())
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, uint64(1), *idx)
}

func TestOutcomeNotSetMeansUnresolved(t *testing.T) {
	backend := &fakeBackend{
		callContract: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
			return nil, outcomeNotSetRevert(t)
		},
	}

	c := NewClient(backend, nil, common.HexToAddress("0xccc"))

	// An OutcomeNotSet revert is "no value yet", not a failure.
	idx, err := c.Outcome(context.Background())
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestOutcomeTransportErrorPropagates(t *testing.T) {
	backend := &fakeBackend{
		callContract: func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
			return nil, errors.New("connection reset")
		},
	}

	c := NewClient(backend, nil, common.HexToAddress("0xccc"))
	_, err := c.Outcome(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsResolved(t *testing.T) {
	resolved := false
	backend := &fakeBackend{
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			method, err := contract.Oracle.MethodById(call.Data[:4])
			require.NoError(t, err)
			require.Equal(t, "isResolved", method.Name)
			return packOutputs(t, "isResolved", resolved), nil
		},
	}

	c := NewClient(backend, nil, common.HexToAddress("0xccc"))

	got, err := c.IsResolved(context.Background())
	require.NoError(t, err)
	assert.False(t, got)

	resolved = true
	got, err = c.IsResolved(context.Background())
	require.NoError(t, err)
	assert.True(t, got)
}

func TestSetOutcomeWithoutSigner(t *testing.T) {
	c := NewClient(&fakeBackend{}, nil, common.HexToAddress("0xccc"))

	err := c.SetOutcome(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrNoSigner)
}
