package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoSigner     = errors.New("no signing credential configured")
	ErrUnknownChain = errors.New("unknown chain id")
	ErrLockHeld     = errors.New("lock already held")

	// ErrIndexerDisabled guards history queries that need the trade-event
	// store when the deployment runs without the indexer.
	ErrIndexerDisabled = errors.New("indexer disabled")

	// ErrOracleUnresolved is returned when market resolution is attempted
	// before the oracle has recorded an outcome. The transaction would revert
	// on-chain; the pre-flight saves the submission.
	ErrOracleUnresolved = errors.New("oracle outcome not set")
)

// ValidationError is a client-side, pre-submission argument failure. It never
// reaches the network.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

// ExpiredDeadlineError is returned when a trading call's deadline has already
// passed before submission. The contract re-checks the deadline
// authoritatively; this check only saves the round trip.
type ExpiredDeadlineError struct {
	Deadline time.Time
}

func (e *ExpiredDeadlineError) Error() string {
	return fmt.Sprintf("deadline %s has already passed", e.Deadline.UTC().Format(time.RFC3339))
}

// MissingEventError reports a transaction that succeeded on-chain but did not
// emit the event the client extracts its results from. This is a fatal logic
// inconsistency, never silently defaulted.
type MissingEventError struct {
	Event string
}

func (e *MissingEventError) Error() string {
	return fmt.Sprintf("%s event not found", e.Event)
}

// DomainRevertError is an on-chain revert decoded against one of the known
// contract ABIs. Message is suitable for direct display.
type DomainRevertError struct {
	Name    string
	Args    []any
	Message string
}

func (e *DomainRevertError) Error() string { return e.Message }

// UnmatchedRevertError is a revert whose selector matches no known error
// definition. It surfaces the raw revert reason.
type UnmatchedRevertError struct {
	Reason string
}

func (e *UnmatchedRevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}
