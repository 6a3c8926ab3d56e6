package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human amount such as "200.0" into the token's smallest unit.
// Amounts with more fractional digits than decimals are rejected.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	return ToBase(d, decimals)
}

// ParseAmount parses a positive human amount
func ParseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("amount must be greater than 0, got %s", amount)
	}
	return d, nil
}

// ToBase shifts a human amount into base units
func ToBase(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits renders a base-unit amount with the token's decimals, trimming trailing zeros
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
