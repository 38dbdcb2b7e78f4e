package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/factory"
)

var errNotImplemented = errors.New("not implemented")

var (
	factoryAddr = common.HexToAddress("0xFAC")
	marketAddr  = common.HexToAddress("0xAAA")
	traderAddr  = common.HexToAddress("0x1111")
)

// chainBackend fakes the node for one factory with one market.
type chainBackend struct {
	mu          sync.Mutex
	latestBlock uint64
	tradeLogs   []types.Log
	queried     []ethereum.FilterQuery
	blockTime   uint64
}

func (b *chainBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if *call.To == factoryAddr {
		method, err := contract.Factory.MethodById(call.Data[:4])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "getMarketCount":
			return method.Outputs.Pack(big.NewInt(1))
		case "getMarket":
			return method.Outputs.Pack(marketAddr)
		}
		return nil, errNotImplemented
	}

	method, err := contract.Market.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getOutcomes":
		return method.Outputs.Pack(
			[]string{"Yes", "No"},
			[]*big.Int{big.NewInt(100), big.NewInt(100)},
			[]*big.Int{big.NewInt(80), big.NewInt(80)},
		)
	case "getOutcomePrice":
		return method.Outputs.Pack(new(big.Int).Div(domain.PriceScale, big.NewInt(2)))
	}
	return nil, errNotImplemented
}

func (b *chainBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queried = append(b.queried, q)

	if q.Topics[0][0] != contract.Market.Events["SharesBought"].ID {
		return nil, nil
	}
	var out []types.Log
	for _, log := range b.tradeLogs {
		if log.BlockNumber >= q.FromBlock.Uint64() && log.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, log)
		}
	}
	return out, nil
}

func (b *chainBackend) BlockNumber(context.Context) (uint64, error) { return b.latestBlock, nil }

func (b *chainBackend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: number, Time: b.blockTime}, nil
}

func (b *chainBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, errNotImplemented
}

func (b *chainBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return nil, errNotImplemented
}

func (b *chainBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errNotImplemented
}

func (b *chainBackend) SendTransaction(context.Context, *types.Transaction) error {
	return errNotImplemented
}

func (b *chainBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, errNotImplemented
}

func (b *chainBackend) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	return nil, errNotImplemented
}

// boughtRanges returns the scanned block ranges of SharesBought queries.
func (b *chainBackend) boughtRanges() [][2]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][2]uint64
	for _, q := range b.queried {
		if q.Topics[0][0] == contract.Market.Events["SharesBought"].ID {
			out = append(out, [2]uint64{q.FromBlock.Uint64(), q.ToBlock.Uint64()})
		}
	}
	return out
}

func buyLog(t *testing.T, block uint64) types.Log {
	t.Helper()
	ev := contract.Market.Events["SharesBought"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(10), big.NewInt(6), big.NewInt(1))
	require.NoError(t, err)
	return types.Log{
		Address: marketAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(traderAddr.Bytes()),
			common.BigToHash(big.NewInt(0)),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
	}
}

// fakeStore is an in-memory TradeEventStore.
type fakeStore struct {
	mu       sync.Mutex
	events   []domain.TradeEvent
	inserted [][]domain.TradeEvent
}

func (s *fakeStore) InsertBatch(_ context.Context, events []domain.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	s.inserted = append(s.inserted, events)
	return nil
}

func (s *fakeStore) LastBlock(_ context.Context, _ uint64, _ common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last uint64
	for _, e := range s.events {
		if e.BlockNumber > last {
			last = e.BlockNumber
		}
	}
	return last, nil
}

func (s *fakeStore) ListByMarket(context.Context, uint64, common.Address, domain.ListOpts) ([]domain.TradeEvent, error) {
	return nil, nil
}

func (s *fakeStore) ListByTrader(context.Context, uint64, common.Address, domain.ListOpts) ([]domain.TradeEvent, error) {
	return nil, nil
}

func (s *fakeStore) ListBefore(context.Context, time.Time) ([]domain.TradeEvent, error) {
	return nil, nil
}

func (s *fakeStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[common.Address][]*big.Int
}

func (c *fakePriceCache) SetPrices(_ context.Context, _ uint64, market common.Address, prices []*big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prices == nil {
		c.prices = make(map[common.Address][]*big.Int)
	}
	c.prices[market] = prices
	return nil
}

func (c *fakePriceCache) GetPrices(context.Context, uint64, common.Address) ([]*big.Int, time.Time, error) {
	return nil, time.Time{}, domain.ErrNotFound
}

type fakeBus struct {
	mu      sync.Mutex
	updates []domain.PriceUpdate
}

func (b *fakeBus) PublishPrices(_ context.Context, update domain.PriceUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
	return nil
}

func (b *fakeBus) SubscribePrices(context.Context, uint64) (<-chan domain.PriceUpdate, error) {
	return nil, errNotImplemented
}

type fakeLocks struct {
	keys []string
	held bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.keys = append(l.keys, key)
	return func() {}, nil
}

func newTestIndexer(backend *chainBackend, store *fakeStore, prices domain.PriceCache, bus domain.PriceBus, locks domain.LockManager) *Indexer {
	fc := factory.NewClient(backend, nil, factoryAddr, discardLogger())
	fc.Binding().SetStartBlock(50)
	return NewIndexer(84532, fc, store, nil, prices, bus, locks, discardLogger())
}

func TestIndexerRunOnce(t *testing.T) {
	backend := &chainBackend{
		latestBlock: 100,
		blockTime:   1_700_000_000,
		tradeLogs:   []types.Log{buyLog(t, 80)},
	}
	store := &fakeStore{}
	prices := &fakePriceCache{}
	bus := &fakeBus{}

	ix := newTestIndexer(backend, store, prices, bus, nil)
	require.NoError(t, ix.RunOnce(context.Background()))

	// First pass scans from the factory start block.
	ranges := backend.boughtRanges()
	require.Len(t, ranges, 1)
	assert.Equal(t, [2]uint64{50, 100}, ranges[0])

	require.Len(t, store.events, 1)
	got := store.events[0]
	assert.Equal(t, uint64(84532), got.ChainID)
	assert.Equal(t, marketAddr, got.Market)
	assert.Equal(t, traderAddr, got.Trader)
	assert.Equal(t, domain.TradeSideBuy, got.Side)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), got.Timestamp)

	// Prices were refreshed and a tick published.
	require.Contains(t, prices.prices, marketAddr)
	assert.Len(t, prices.prices[marketAddr], 2)
	require.Len(t, bus.updates, 1)
	assert.Equal(t, uint64(84532), bus.updates[0].ChainID)
	assert.Equal(t, marketAddr, bus.updates[0].Market)
}

func TestIndexerResumesFromLastBlock(t *testing.T) {
	backend := &chainBackend{
		latestBlock: 100,
		blockTime:   1_700_000_000,
		tradeLogs:   []types.Log{buyLog(t, 80)},
	}
	store := &fakeStore{}

	ix := newTestIndexer(backend, store, nil, nil, nil)
	require.NoError(t, ix.RunOnce(context.Background()))
	require.Len(t, store.events, 1)

	// Second pass picks up after block 80 and finds nothing new.
	backend.latestBlock = 120
	require.NoError(t, ix.RunOnce(context.Background()))

	ranges := backend.boughtRanges()
	require.Len(t, ranges, 2)
	assert.Equal(t, [2]uint64{81, 120}, ranges[1])
	assert.Len(t, store.events, 1)
}

func TestIndexerSkipsWhenBehind(t *testing.T) {
	// Nothing new on chain: no log scan, no insert.
	backend := &chainBackend{latestBlock: 100, tradeLogs: []types.Log{buyLog(t, 80)}}
	store := &fakeStore{}
	store.events = append(store.events, domain.TradeEvent{BlockNumber: 100})

	ix := newTestIndexer(backend, store, nil, nil, nil)
	require.NoError(t, ix.RunOnce(context.Background()))

	assert.Empty(t, backend.boughtRanges())
	assert.Len(t, store.events, 1)
}

func TestIndexerLock(t *testing.T) {
	backend := &chainBackend{latestBlock: 100, blockTime: 1}
	locks := &fakeLocks{}

	ix := newTestIndexer(backend, &fakeStore{}, nil, nil, locks)
	require.NoError(t, ix.RunOnce(context.Background()))
	assert.Equal(t, []string{"indexer:84532"}, locks.keys)

	// A held lock skips the pass without error.
	held := &fakeLocks{held: true}
	backend2 := &chainBackend{latestBlock: 100}
	ix = newTestIndexer(backend2, &fakeStore{}, nil, nil, held)
	require.NoError(t, ix.RunOnce(context.Background()))
	assert.Empty(t, backend2.queried)
}
