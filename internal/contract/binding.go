// Package contract wraps deployed contract instances behind a generic
// Binding: address + ABI + historical-event start point + default sender.
// Concrete contract clients hold a Binding and add typed wrappers on top;
// there is no subclassing.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/predictfi/predict-go/internal/domain"
)

// DefaultLogChunk is the block-range size for paginated log scans. Unbounded
// eth_getLogs queries hit provider-side result limits on busy chains.
const DefaultLogChunk uint64 = 10_000

// receiptPollInterval is how often a submitted transaction's receipt is
// polled for.
const receiptPollInterval = 500 * time.Millisecond

// Backend is the node surface a Binding needs. *ethclient.Client satisfies
// it; tests substitute fakes.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Signer signs transactions for one sending address. chain.Connection
// satisfies it.
type Signer interface {
	From() common.Address
	ChainID() *big.Int
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Binding is one deployed contract instance bound to a backend.
type Binding struct {
	backend Backend
	signer  Signer // nil for read-only bindings
	abi     abi.ABI
	address common.Address

	startBlock    uint64
	defaultSender common.Address
	logChunk      uint64
}

// NewBinding binds a contract at the given address. signer may be nil when
// the binding is only used for reads and log scans.
func NewBinding(backend Backend, signer Signer, contractABI abi.ABI, address common.Address) *Binding {
	return &Binding{
		backend:  backend,
		signer:   signer,
		abi:      contractABI,
		address:  address,
		logChunk: DefaultLogChunk,
	}
}

// Address returns the bound contract address.
func (b *Binding) Address() common.Address { return b.address }

// ABI returns the bound contract ABI.
func (b *Binding) ABI() abi.ABI { return b.abi }

// Backend returns the underlying node backend.
func (b *Binding) Backend() Backend { return b.backend }

// Signer returns the binding's signer, which may be nil.
func (b *Binding) Signer() Signer { return b.signer }

// StartBlock returns the lower bound for historical-event scans. Zero means
// "from genesis": correct, but possibly slow.
func (b *Binding) StartBlock() uint64 { return b.startBlock }

// SetStartBlock sets the lower bound for historical-event scans.
func (b *Binding) SetStartBlock(block uint64) { b.startBlock = block }

// DefaultSender returns the sender used when a call-site omits one. It falls
// back to the signer's address.
func (b *Binding) DefaultSender() common.Address {
	if b.defaultSender != (common.Address{}) {
		return b.defaultSender
	}
	if b.signer != nil {
		return b.signer.From()
	}
	return common.Address{}
}

// SetDefaultSender overrides the default sender.
func (b *Binding) SetDefaultSender(addr common.Address) { b.defaultSender = addr }

// SetLogChunk overrides the block-range size used by paginated log scans.
func (b *Binding) SetLogChunk(chunk uint64) {
	if chunk > 0 {
		b.logChunk = chunk
	}
}

// Call executes a read-only contract call via eth_call and unpacks the
// outputs. Reverts are decoded against the known ABIs before surfacing.
func (b *Binding) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{
		From: b.DefaultSender(),
		To:   &b.address,
		Data: data,
	}

	raw, err := b.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, DecodeRevert(err)
	}

	out, err := b.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("contract: unpack %s: %w", method, err)
	}
	return out, nil
}

// SendOpts carries the per-transaction options for Send.
type SendOpts struct {
	// From overrides the binding's default sender.
	From common.Address
	// Value is the native-currency payment attached to the call.
	Value *big.Int
	// GasLimit skips estimation when non-zero.
	GasLimit uint64
}

// Send packs a method call, submits it as an EIP-1559 transaction, and waits
// for the receipt. A reverted transaction is decoded into a domain error; the
// caller never sees a status-0 receipt as success.
func (b *Binding) Send(ctx context.Context, opts SendOpts, method string, args ...any) (*types.Receipt, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: pack %s: %w", method, err)
	}
	return SendTx(ctx, b.backend, b.signer, opts, &b.address, data)
}

// SendTx builds, signs, submits, and waits for one transaction. to is nil for
// contract creation.
func SendTx(ctx context.Context, backend Backend, signer Signer, opts SendOpts, to *common.Address, data []byte) (*types.Receipt, error) {
	if signer == nil {
		return nil, domain.ErrNoSigner
	}

	from := opts.From
	if from == (common.Address{}) {
		from = signer.From()
	}

	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("contract: pending nonce for %s: %w", from, err)
	}

	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("contract: suggest gas tip: %w", err)
	}

	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("contract: latest header: %w", err)
	}

	// feeCap = 2*baseFee + tip, the ethclient convention.
	feeCap := new(big.Int).Add(
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		tip,
	)

	msg := ethereum.CallMsg{
		From:      from,
		To:        to,
		Value:     value,
		Data:      data,
		GasTipCap: tip,
		GasFeeCap: feeCap,
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit, err = backend.EstimateGas(ctx, msg)
		if err != nil {
			// Estimation runs the call; a revert surfaces here with data.
			return nil, DecodeRevert(err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        to,
		Value:     value,
		Data:      data,
	})

	signed, err := signer.SignTx(tx)
	if err != nil {
		return nil, err
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, DecodeRevert(err)
	}

	receipt, err := waitMined(ctx, backend, signed.Hash())
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		// Replay the call at the mined block to recover the revert data.
		if _, callErr := backend.CallContract(ctx, msg, receipt.BlockNumber); callErr != nil {
			return nil, DecodeRevert(callErr)
		}
		return nil, &domain.UnmatchedRevertError{Reason: fmt.Sprintf("transaction %s reverted", signed.Hash())}
	}

	return receipt, nil
}

// waitMined polls for the transaction receipt until it lands or the context
// is cancelled. Once submitted, the transaction cannot be revoked.
func waitMined(ctx context.Context, backend Backend, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("contract: receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("contract: waiting for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// FilterEvents scans logs for one event from the binding's start block to the
// latest block, filtered on the given indexed argument values (one slice per
// indexed position; nil matches any).
func (b *Binding) FilterEvents(ctx context.Context, event string, indexed ...[]any) ([]types.Log, error) {
	latest, err := b.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("contract: latest block: %w", err)
	}
	return b.FilterEventsRange(ctx, b.startBlock, latest, event, indexed...)
}

// FilterEventsRange scans logs for one event over [from, to], paginated into
// fixed-size block chunks. The full range is always covered; an aggregate
// built from a partial scan is wrong, not approximate.
func (b *Binding) FilterEventsRange(ctx context.Context, from, to uint64, event string, indexed ...[]any) ([]types.Log, error) {
	ev, ok := b.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("contract: unknown event %q", event)
	}

	query := append([][]any{{ev.ID}}, indexed...)
	topics, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("contract: topics for %s: %w", event, err)
	}

	var logs []types.Log
	for start := from; start <= to; start += b.logChunk {
		end := start + b.logChunk - 1
		if end > to {
			end = to
		}

		chunk, err := b.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{b.address},
			Topics:    topics,
		})
		if err != nil {
			return nil, fmt.Errorf("contract: filter %s [%d,%d]: %w", event, start, end, err)
		}
		logs = append(logs, chunk...)

		// Guard the += against wrapping at the end of the range.
		if end == to {
			break
		}
	}
	return logs, nil
}

// DecodeEvent unpacks one log's indexed and non-indexed arguments into a map
// keyed by argument name.
func (b *Binding) DecodeEvent(event string, log types.Log) (map[string]any, error) {
	ev, ok := b.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("contract: unknown event %q", event)
	}
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("contract: log is not a %s event", event)
	}

	out := make(map[string]any)
	if len(log.Data) > 0 {
		if err := b.abi.UnpackIntoMap(out, event, log.Data); err != nil {
			return nil, fmt.Errorf("contract: unpack %s data: %w", event, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(out, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("contract: parse %s topics: %w", event, err)
		}
	}
	return out, nil
}

// EventFromReceipt finds and decodes the named event in a receipt. A missing
// event after a successful transaction is a fatal logic inconsistency.
func (b *Binding) EventFromReceipt(receipt *types.Receipt, event string) (map[string]any, *types.Log, error) {
	ev, ok := b.abi.Events[event]
	if !ok {
		return nil, nil, fmt.Errorf("contract: unknown event %q", event)
	}

	for _, log := range receipt.Logs {
		if log.Address != b.address || len(log.Topics) == 0 || log.Topics[0] != ev.ID {
			continue
		}
		decoded, err := b.DecodeEvent(event, *log)
		if err != nil {
			return nil, nil, err
		}
		return decoded, log, nil
	}
	return nil, nil, &domain.MissingEventError{Event: event}
}

// StorageAt reads one raw storage slot of the bound contract at the latest
// block.
func (b *Binding) StorageAt(ctx context.Context, slot common.Hash) ([]byte, error) {
	data, err := b.backend.StorageAt(ctx, b.address, slot, nil)
	if err != nil {
		return nil, fmt.Errorf("contract: storage at %s: %w", slot, err)
	}
	return data, nil
}
