// Package oracle is the client for the centralized resolution oracle that
// supplies a market's winning outcome.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictfi/predict-go/internal/contract"
	"github.com/predictfi/predict-go/internal/domain"
)

// Client wraps one deployed oracle instance.
type Client struct {
	binding *contract.Binding
}

// NewClient binds an oracle at the given address. signer may be nil for a
// read-only client.
func NewClient(backend contract.Backend, signer contract.Signer, address common.Address) *Client {
	return &Client{binding: contract.NewBinding(backend, signer, contract.Oracle, address)}
}

// Address returns the oracle contract address.
func (c *Client) Address() common.Address { return c.binding.Address() }

// SetOutcome records the winning outcome index. Only the oracle owner may
// call this, and only once.
func (c *Client) SetOutcome(ctx context.Context, outcomeIndex uint64) error {
	_, err := c.binding.Send(ctx, contract.SendOpts{}, "setOutcome", new(big.Int).SetUint64(outcomeIndex))
	return err
}

// Outcome returns the recorded outcome index, or nil when the oracle has not
// resolved yet. Like the market's resolved-outcome read, an OutcomeNotSet
// revert is a valid "no value yet" signal here.
func (c *Client) Outcome(ctx context.Context) (*uint64, error) {
	out, err := c.binding.Call(ctx, "getOutcome")
	if err != nil {
		var domainErr *domain.DomainRevertError
		if errors.As(err, &domainErr) && domainErr.Name == "OutcomeNotSet" {
			return nil, nil
		}
		return nil, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("oracle: outcome has unexpected type")
	}
	idx := raw.Uint64()
	return &idx, nil
}

// IsResolved reports whether the oracle has recorded an outcome.
func (c *Client) IsResolved(ctx context.Context) (bool, error) {
	out, err := c.binding.Call(ctx, "isResolved")
	if err != nil {
		return false, err
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("oracle: isResolved result has unexpected type")
	}
	return v, nil
}
