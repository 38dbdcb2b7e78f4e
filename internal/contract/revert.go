package contract

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/predictfi/predict-go/internal/domain"
)

// Solidity built-in revert selectors: Error(string) and Panic(uint256).
var (
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71}

	stringArg, _  = abi.NewType("string", "", nil)
	uint256Arg, _ = abi.NewType("uint256", "", nil)
)

// knownABIs are all contract surfaces whose custom errors we can decode. A
// revert is matched against every surface: the factory delegates into market
// code, so the reverting contract is not always the one that was called.
var knownABIs = []abi.ABI{Market, MarketAMM, Factory, Oracle}

// dataError is the unexported go-ethereum interface exposing revert data on
// RPC errors.
type dataError interface {
	ErrorData() any
}

// RevertData extracts the raw revert payload from an RPC error chain, if any.
func RevertData(err error) ([]byte, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		de, ok := e.(dataError)
		if !ok {
			continue
		}
		switch data := de.ErrorData().(type) {
		case string:
			raw, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
			if err != nil {
				return nil, false
			}
			return raw, true
		case []byte:
			return data, true
		}
	}
	return nil, false
}

// DecodeRevert turns a failed call or send into the most specific error
// available.
//
// A revert carrying a known custom-error selector becomes a DomainRevertError
// with a display-ready message; a plain Error(string) or Panic, or an unknown
// selector, becomes an UnmatchedRevertError; anything without revert data
// (transport failure, timeout) passes through unchanged.
func DecodeRevert(err error) error {
	if err == nil {
		return nil
	}

	data, ok := RevertData(err)
	if !ok {
		return err
	}
	if len(data) < 4 {
		return &domain.UnmatchedRevertError{Reason: err.Error()}
	}

	selector, payload := data[:4], data[4:]

	if bytes.Equal(selector, errorStringSelector) {
		args := abi.Arguments{{Type: stringArg}}
		if vals, uerr := args.Unpack(payload); uerr == nil && len(vals) == 1 {
			if reason, ok := vals[0].(string); ok {
				return &domain.UnmatchedRevertError{Reason: reason}
			}
		}
		return &domain.UnmatchedRevertError{Reason: err.Error()}
	}

	if bytes.Equal(selector, panicSelector) {
		args := abi.Arguments{{Type: uint256Arg}}
		if vals, uerr := args.Unpack(payload); uerr == nil && len(vals) == 1 {
			if code, ok := vals[0].(*big.Int); ok {
				return &domain.UnmatchedRevertError{Reason: fmt.Sprintf("panic code 0x%x", code)}
			}
		}
		return &domain.UnmatchedRevertError{Reason: err.Error()}
	}

	for _, contractABI := range knownABIs {
		for _, errDef := range contractABI.Errors {
			if !bytes.Equal(errDef.ID[:4], selector) {
				continue
			}
			args, uerr := errDef.Inputs.Unpack(payload)
			if uerr != nil {
				return &domain.UnmatchedRevertError{Reason: fmt.Sprintf("%s (malformed arguments)", errDef.Name)}
			}
			return &domain.DomainRevertError{
				Name:    errDef.Name,
				Args:    args,
				Message: formatRevert(errDef.Name, args),
			}
		}
	}

	return &domain.UnmatchedRevertError{Reason: err.Error()}
}

// formatRevert renders a decoded custom error as a message suitable for
// direct display. Unknown names fall through to a generic rendering so new
// contract errors degrade gracefully.
func formatRevert(name string, args []any) string {
	switch name {
	// Market
	case "DeadlinePassed":
		return fmt.Sprintf("Deadline %v passed at block time %v", arg(args, 0), arg(args, 1))
	case "MarketCloseTimeNotPassed":
		return fmt.Sprintf("Market close time %v has not passed yet", arg(args, 0))
	case "MarketNotOpen":
		return fmt.Sprintf("Market is not open (state %v)", arg(args, 0))
	case "MarketNotClosed":
		return fmt.Sprintf("Market is not closed (state %v)", arg(args, 0))
	case "MarketNotResolved":
		return "Market is not resolved"
	case "ResolveDelayNotElapsed":
		return fmt.Sprintf("Resolve delay has not elapsed, resolvable at %v", arg(args, 0))
	case "InvalidOutcomeIndex":
		return fmt.Sprintf("Outcome index %v is out of range for %v outcomes", arg(args, 0), arg(args, 1))
	case "MinimumSharesNotMet":
		return fmt.Sprintf("Expected at least %v shares, got %v", arg(args, 0), arg(args, 1))
	case "MinimumAmountNotMet":
		return fmt.Sprintf("Expected at least %v, got %v", arg(args, 0), arg(args, 1))
	case "InsufficientShares":
		return fmt.Sprintf("Insufficient shares: requested %v, available %v", arg(args, 0), arg(args, 1))
	case "NothingToClaim":
		return fmt.Sprintf("Nothing to claim for %v", arg(args, 0))

	// MarketAMM
	case "InsufficientLiquidity":
		return "Insufficient liquidity"
	case "InvalidOutcomeCount":
		return fmt.Sprintf("Invalid outcome count %v", arg(args, 0))

	// Factory
	case "OnlyBinaryMarketSupported":
		return "Only binary market supported"
	case "InvalidQuestionLength":
		return fmt.Sprintf("Invalid question length %v", arg(args, 0))
	case "InvalidCloseTime":
		return fmt.Sprintf("Close time %v is not in the future", arg(args, 0))
	case "InvalidResolveDelay":
		return fmt.Sprintf("Resolve delay %v seconds is out of range", arg(args, 0))
	case "InvalidFeeBPS":
		return fmt.Sprintf("Fee %v basis points is out of range", arg(args, 0))
	case "OnlyOwner":
		return fmt.Sprintf("Caller %v is not the factory owner", arg(args, 0))

	// Oracle
	case "OnlyOracleOwner":
		return fmt.Sprintf("Caller %v is not the oracle owner", arg(args, 0))
	case "OutcomeNotSet":
		return "Oracle outcome has not been set"
	case "OutcomeAlreadySet":
		return fmt.Sprintf("Oracle outcome already set to %v", arg(args, 0))
	case "InvalidOutcome":
		return fmt.Sprintf("Invalid oracle outcome %v", arg(args, 0))
	}

	if len(args) == 0 {
		return name
	}
	return fmt.Sprintf("%s%v", name, args)
}

func arg(args []any, i int) any {
	if i >= len(args) {
		return "?"
	}
	return args[i]
}
