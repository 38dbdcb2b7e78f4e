// Package factory is the client for the market-factory proxy: deployment,
// market creation with pre-submission validation, and market enumeration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
	"github.com/predictfi/predict-go/internal/market"
)

const (
	minQuestionRunes = 6
	minResolveDelay  = 60
	maxResolveDelay  = 604_800
	maxFeeBPS        = 10_000
)

// Client wraps one deployed factory proxy.
type Client struct {
	binding *contract.Binding
	log     *slog.Logger
}

// NewClient binds a factory at the given address.
func NewClient(backend contract.Backend, signer contract.Signer, address common.Address, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		binding: contract.NewBinding(backend, signer, contract.Factory, address),
		log:     log,
	}
}

// Address returns the factory proxy address.
func (c *Client) Address() common.Address { return c.binding.Address() }

// Binding exposes the underlying contract binding.
func (c *Client) Binding() *contract.Binding { return c.binding }

// DeployOptions configures Deploy. Zero implementation addresses mean
// "deploy a fresh implementation from the artifacts directory".
type DeployOptions struct {
	// Owner of the new factory. Defaults to the signer's address.
	Owner common.Address

	MarketImplementation    common.Address
	MarketAMMImplementation common.Address
	OracleImplementation    common.Address

	// ArtifactsDir holds the compiled-contract JSON artifacts used for any
	// implementation not supplied above.
	ArtifactsDir string
}

// Deploy deploys a complete factory: missing implementation contracts first,
// then the factory implementation behind an ERC-1967 proxy, initialized in
// the proxy's constructor. The returned client has its event start block
// pinned to the deployment block, so created-market scans never cover
// pre-existence history.
func Deploy(ctx context.Context, backend contract.Backend, signer contract.Signer, opts DeployOptions, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if signer == nil {
		return nil, domain.ErrNoSigner
	}

	owner := opts.Owner
	if owner == (common.Address{}) {
		owner = signer.From()
	}

	deployer := contract.NewDeployer(backend, signer, opts.ArtifactsDir)

	implFor := func(current common.Address, artifact string) (common.Address, error) {
		if current != (common.Address{}) {
			return current, nil
		}
		addr, _, err := deployer.Deploy(ctx, artifact, nil)
		if err != nil {
			return common.Address{}, err
		}
		log.Info("implementation deployed",
			slog.String("contract", artifact),
			slog.String("address", addr.Hex()))
		return addr, nil
	}

	marketImpl, err := implFor(opts.MarketImplementation, "Market")
	if err != nil {
		return nil, err
	}
	ammImpl, err := implFor(opts.MarketAMMImplementation, "MarketAMM")
	if err != nil {
		return nil, err
	}
	oracleImpl, err := implFor(opts.OracleImplementation, "CentralizedOracle")
	if err != nil {
		return nil, err
	}

	factoryImpl, _, err := deployer.Deploy(ctx, "MarketFactory", nil)
	if err != nil {
		return nil, err
	}

	initData, err := contract.Factory.Pack("initialize", owner, marketImpl, ammImpl, oracleImpl)
	if err != nil {
		return nil, fmt.Errorf("factory: pack initialize: %w", err)
	}

	proxy, receipt, err := deployer.DeployProxy(ctx, factoryImpl, initData, nil)
	if err != nil {
		return nil, err
	}

	log.Info("factory deployed",
		slog.String("proxy", proxy.Hex()),
		slog.String("implementation", factoryImpl.Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()))

	client := NewClient(backend, signer, proxy, log)
	client.binding.SetStartBlock(receipt.BlockNumber.Uint64())
	return client, nil
}

// CreateMarketArgs are the inputs to CreateMarket. CloseTime takes precedence
// over CloseTimeUnix when both are set.
type CreateMarketArgs struct {
	Question     string
	OutcomeNames []string

	CloseTime     time.Time
	CloseTimeUnix int64

	// InitialLiquidity is escrowed with the creation transaction, in the
	// smallest native-currency unit.
	InitialLiquidity *big.Int

	ResolveDelaySeconds int64
	FeeBPS              int64
}

// closeTime normalizes the dual close-time input to a single time.Time.
func (a CreateMarketArgs) closeTime() time.Time {
	if !a.CloseTime.IsZero() {
		return a.CloseTime
	}
	return time.Unix(a.CloseTimeUnix, 0)
}

// validate fails fast on malformed arguments before any network round trip.
func (a CreateMarketArgs) validate() error {
	if utf8.RuneCountInString(a.Question) <= minQuestionRunes {
		return domain.NewValidationError("Question must be longer than 6 characters")
	}
	if len(a.OutcomeNames) != 2 {
		return domain.NewValidationError("Only binary markets are supported")
	}
	if !a.closeTime().After(time.Now()) {
		return domain.NewValidationError("Close time must be greater than current time")
	}
	// The liquidity check rejects only negatives, not zero, even though the
	// message says "greater than 0". Kept as-is; the contract has the final
	// word on a zero-liquidity creation.
	if a.InitialLiquidity == nil || a.InitialLiquidity.Sign() < 0 {
		return domain.NewValidationError("Initial liquidity must be greater than 0")
	}
	if a.ResolveDelaySeconds < minResolveDelay || a.ResolveDelaySeconds > maxResolveDelay {
		return domain.NewValidationError("Resolve delay must be between 60 and 604800 seconds")
	}
	if a.FeeBPS < 0 || a.FeeBPS > maxFeeBPS {
		return domain.NewValidationError("Fee must be between 0 and 10000 basis points")
	}
	return nil
}

// CreateMarket validates the arguments, submits the creation transaction with
// the initial liquidity attached as payment, and returns a client for the new
// market. The new market's address comes from the MarketCreated event and its
// event start block is pinned to the event's block, so its own history scans
// start exactly at creation.
func (c *Client) CreateMarket(ctx context.Context, args CreateMarketArgs) (*market.Client, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}

	receipt, err := c.binding.Send(ctx, contract.SendOpts{Value: args.InitialLiquidity},
		"createMarket",
		args.Question,
		args.OutcomeNames,
		big.NewInt(args.closeTime().Unix()),
		big.NewInt(args.ResolveDelaySeconds),
		big.NewInt(args.FeeBPS),
	)
	if err != nil {
		return nil, err
	}

	decoded, log, err := c.binding.EventFromReceipt(receipt, "MarketCreated")
	if err != nil {
		return nil, err
	}
	marketAddr, ok := decoded["market"].(common.Address)
	if !ok {
		return nil, errors.New("factory: MarketCreated market argument has unexpected type")
	}

	c.log.Info("market created",
		slog.String("market", marketAddr.Hex()),
		slog.String("question", args.Question),
		slog.Uint64("block", log.BlockNumber))

	handle := market.NewClient(c.binding.Backend(), c.binding.Signer(), marketAddr, c.log)
	handle.SetStartBlock(log.BlockNumber)
	return handle, nil
}

// MarketCount reads the number of markets the factory has created.
func (c *Client) MarketCount(ctx context.Context) (uint64, error) {
	count, err := c.callBig(ctx, "getMarketCount")
	if err != nil {
		return 0, err
	}
	return count.Uint64(), nil
}

// Markets enumerates every created market by index. One round trip per
// market; acceptable for the expected market counts.
func (c *Client) Markets(ctx context.Context) ([]*market.Client, error) {
	count, err := c.MarketCount(ctx)
	if err != nil {
		return nil, err
	}

	markets := make([]*market.Client, 0, count)
	for i := uint64(0); i < count; i++ {
		addr, err := c.callAddress(ctx, "getMarket", new(big.Int).SetUint64(i))
		if err != nil {
			return nil, fmt.Errorf("factory: market at index %d: %w", i, err)
		}
		handle := market.NewClient(c.binding.Backend(), c.binding.Signer(), addr, c.log)
		// A market cannot predate its factory.
		handle.SetStartBlock(c.binding.StartBlock())
		markets = append(markets, handle)
	}
	return markets, nil
}

// UserCreatedMarkets returns clients for every market the given user created,
// found by filtering MarketCreated events from the factory's start block.
// Each handle's start block is pinned to its creation block.
func (c *Client) UserCreatedMarkets(ctx context.Context, user common.Address) ([]*market.Client, error) {
	logs, err := c.binding.FilterEvents(ctx, "MarketCreated", []any{user})
	if err != nil {
		return nil, err
	}

	markets := make([]*market.Client, 0, len(logs))
	for _, log := range logs {
		decoded, err := c.binding.DecodeEvent("MarketCreated", log)
		if err != nil {
			return nil, err
		}
		addr, ok := decoded["market"].(common.Address)
		if !ok {
			return nil, errors.New("factory: MarketCreated market argument has unexpected type")
		}
		handle := market.NewClient(c.binding.Backend(), c.binding.Signer(), addr, c.log)
		handle.SetStartBlock(log.BlockNumber)
		markets = append(markets, handle)
	}
	return markets, nil
}

// Owner reads the factory owner.
func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, "owner")
}

// MarketImplementation reads the implementation cloned for new markets.
func (c *Client) MarketImplementation(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, "marketImplementation")
}

// MarketAMMImplementation reads the implementation cloned for new pricing
// contracts.
func (c *Client) MarketAMMImplementation(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, "marketAMMImplementation")
}

// OracleImplementation reads the default oracle implementation.
func (c *Client) OracleImplementation(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, "oracleImplementation")
}

// Implementation reads the proxy's own implementation address straight from
// the ERC-1967 storage slot, bypassing the ABI: the slot is not exposed as a
// view function.
func (c *Client) Implementation(ctx context.Context) (common.Address, error) {
	return contract.ImplementationAt(ctx, c.binding.Backend(), c.Address())
}

// TransferOwnership hands the factory to a new owner.
func (c *Client) TransferOwnership(ctx context.Context, newOwner common.Address) error {
	_, err := c.binding.Send(ctx, contract.SendOpts{}, "transferOwnership", newOwner)
	return err
}

// SetMarketImplementation points new markets at a different implementation.
func (c *Client) SetMarketImplementation(ctx context.Context, impl common.Address) error {
	_, err := c.binding.Send(ctx, contract.SendOpts{}, "setMarketImplementation", impl)
	return err
}

// SetMarketAMMImplementation points new pricing contracts at a different
// implementation.
func (c *Client) SetMarketAMMImplementation(ctx context.Context, impl common.Address) error {
	_, err := c.binding.Send(ctx, contract.SendOpts{}, "setMarketAMMImplementation", impl)
	return err
}

// SetOracleImplementation points new oracles at a different implementation.
func (c *Client) SetOracleImplementation(ctx context.Context, impl common.Address) error {
	_, err := c.binding.Send(ctx, contract.SendOpts{}, "setOracleImplementation", impl)
	return err
}

func (c *Client) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.binding.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("factory: %s result has unexpected type", method)
	}
	return v, nil
}

func (c *Client) callAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	out, err := c.binding.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("factory: %s result has unexpected type", method)
	}
	return v, nil
}
