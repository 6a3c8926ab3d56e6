package trade

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SwapKind selects the router function used for a trade
type SwapKind string

const (
	ExactTokensForETH              SwapKind = "exact-tokens-for-eth"               // swapExactTokensForETH
	ExactTokensForETHFeeOnTransfer SwapKind = "exact-tokens-for-eth-fee-on-transfer" // swapExactTokensForETHSupportingFeeOnTransferTokens
	ETHForExactTokens              SwapKind = "eth-for-exact-tokens"               // swapETHForExactTokens
)

// ExactOutput reports whether Amount is the desired output rather than the input
func (k SwapKind) ExactOutput() bool {
	return k == ETHForExactTokens
}

// TradeRequest represents a single trade the user asked for
type TradeRequest struct {
	Kind           SwapKind
	SellToken      common.Address
	BuyToken       common.Address
	Via            []common.Address
	Amount         decimal.Decimal // Human amount, in units of the token being sold (or bought for exact-output)
	Decimals       uint8           // Decimals of the token Amount is denominated in
	SlippageBps    int
	DeadlineOffset time.Duration
}

// Path returns the hop-by-hop route of the trade
func (r TradeRequest) Path() []common.Address {
	path := make([]common.Address, 0, len(r.Via)+2)
	path = append(path, r.SellToken)
	path = append(path, r.Via...)
	return append(path, r.BuyToken)
}

// BaseAmount converts Amount into the token's smallest unit
func (r TradeRequest) BaseAmount() (*big.Int, error) {
	shifted := r.Amount.Shift(int32(r.Decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", r.Amount, r.Decimals)
	}
	if shifted.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be greater than 0")
	}
	return shifted.BigInt(), nil
}

// WithAmount returns a copy of the request trading a different amount
func (r TradeRequest) WithAmount(amount decimal.Decimal) TradeRequest {
	r.Via = append([]common.Address(nil), r.Via...)
	r.Amount = amount
	return r
}

// Validate checks the request before any RPC is made
func (r TradeRequest) Validate() error {
	switch r.Kind {
	case ExactTokensForETH, ExactTokensForETHFeeOnTransfer, ETHForExactTokens:
	default:
		return fmt.Errorf("unknown swap kind: %q", r.Kind)
	}
	if r.SellToken == (common.Address{}) {
		return fmt.Errorf("sell token is required")
	}
	if r.BuyToken == (common.Address{}) {
		return fmt.Errorf("buy token is required")
	}
	if r.SellToken == r.BuyToken {
		return fmt.Errorf("sell and buy token must differ")
	}
	if r.SlippageBps < 0 || r.SlippageBps > MaxBps {
		return fmt.Errorf("slippage must be between 0 and %d bps, got %d", MaxBps, r.SlippageBps)
	}
	if r.DeadlineOffset <= 0 {
		return fmt.Errorf("deadline offset must be positive")
	}
	if _, err := r.BaseAmount(); err != nil {
		return err
	}
	return nil
}

// Quote holds the router's per-hop amounts for a path
type Quote struct {
	Path    []common.Address
	Amounts []*big.Int
}

// Input returns the amount entering the first hop
func (q *Quote) Input() *big.Int {
	if len(q.Amounts) == 0 {
		return new(big.Int)
	}
	return q.Amounts[0]
}

// Output returns the amount leaving the last hop
func (q *Quote) Output() *big.Int {
	if len(q.Amounts) == 0 {
		return new(big.Int)
	}
	return q.Amounts[len(q.Amounts)-1]
}

// SwapOrder is a fully-formed router call derived from a quote
type SwapOrder struct {
	Request       TradeRequest
	Path          []common.Address
	AmountIn      *big.Int // Exact input for exact-input swaps, nil for exact-output
	MinimumOutput *big.Int // amountOutMin, or the exact amountOut for ETHForExactTokens
	Value         *big.Int // Native currency attached to the call
	Deadline      time.Time
}

// ReceiptStatus is the terminal state of a submitted transaction
type ReceiptStatus string

const (
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptReverted  ReceiptStatus = "reverted"
)

// Receipt is the observed outcome of a submitted swap
type Receipt struct {
	TxHash      common.Hash
	Status      ReceiptStatus
	BlockNumber uint64
	GasUsed     uint64
}
