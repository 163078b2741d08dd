package scanner

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// MinimumRawAmount is the smallest raw token value that counts as payment:
// (threshold - margin) * 10^decimals, rounded up to a whole unit.
func MinimumRawAmount(threshold, margin decimal.Decimal, decimals uint8) *big.Int {
	return threshold.Sub(margin).Shift(int32(decimals)).Ceil().BigInt()
}
