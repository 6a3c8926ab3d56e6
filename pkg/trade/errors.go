package trade

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrQuoteUnavailable is returned when the router's read-only quote call fails
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrRetriesExhausted is returned when the retry policy runs out of attempts
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrFallbackExhausted is returned when the reduced-amount fallback sell also fails
	ErrFallbackExhausted = errors.New("fallback exhausted")
)

// FailureKind classifies a failed swap once, where the chain error is received
type FailureKind int

const (
	FailureFatal FailureKind = iota
	FailureRetryable
)

func (k FailureKind) String() string {
	switch k {
	case FailureRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// SwapError describes a failed simulation, submission or confirmation
type SwapError struct {
	Kind   FailureKind
	Stage  State
	Reason string      // Revert reason, empty when the chain gave none
	TxHash common.Hash // Zero when the transaction was never sent
	Err    error
}

func (e *SwapError) Error() string {
	msg := fmt.Sprintf("swap failed during %s (%s)", e.Stage, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxHash != (common.Hash{}) {
		msg += " [tx " + e.TxHash.Hex() + "]"
	}
	if e.Err != nil && e.Err.Error() != e.Reason {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SwapError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is a swap failure the retry policy may repeat
func Retryable(err error) bool {
	var swapErr *SwapError
	return errors.As(err, &swapErr) && swapErr.Kind == FailureRetryable
}
