package trade

import "math/big"

// MaxBps is 100% expressed in basis points
const MaxBps = 10000

// MinOutput shrinks a quoted output by toleranceBps basis points.
// The result is never negative and never exceeds quoted.
func MinOutput(quoted *big.Int, toleranceBps int) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 {
		return new(big.Int)
	}
	if toleranceBps < 0 {
		toleranceBps = 0
	}
	if toleranceBps > MaxBps {
		toleranceBps = MaxBps
	}

	cut := new(big.Int).Mul(quoted, big.NewInt(int64(toleranceBps)))
	cut.Quo(cut, big.NewInt(MaxBps))
	return new(big.Int).Sub(quoted, cut)
}
