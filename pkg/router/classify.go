package router

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dex-swap/pkg/chain"
	"dex-swap/pkg/trade"
)

// Classifier decides whether a chain failure is worth retrying.
// Only exact matches of a known revert reason are retryable.
type Classifier struct {
	retryable map[string]struct{}
}

// NewClassifier creates a classifier for the given retryable revert reasons
func NewClassifier(reasons []string) *Classifier {
	c := &Classifier{retryable: make(map[string]struct{}, len(reasons))}
	for _, r := range reasons {
		r = strings.TrimSpace(r)
		if r != "" {
			c.retryable[r] = struct{}{}
		}
	}
	return c
}

// Classify wraps err into a SwapError with its failure kind
func (c *Classifier) Classify(stage trade.State, txHash common.Hash, err error) *trade.SwapError {
	swapErr := &trade.SwapError{
		Kind:   trade.FailureFatal,
		Stage:  stage,
		TxHash: txHash,
		Err:    err,
	}

	reason, reverted := chain.RevertReason(err)
	if !reverted {
		return swapErr
	}
	swapErr.Reason = reason
	if _, ok := c.retryable[reason]; ok {
		swapErr.Kind = trade.FailureRetryable
	}
	return swapErr
}
