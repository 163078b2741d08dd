package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Web3BigInt is a raw on-chain integer amount together with the precision
// of the token it is denominated in.
type Web3BigInt struct {
	Value   string `json:"value"`
	Decimal int    `json:"decimal"`
}

func NewWeb3BigInt(value *big.Int, decimals int) *Web3BigInt {
	return &Web3BigInt{
		Value:   value.String(),
		Decimal: decimals,
	}
}

// BigInt parses Value. An unparsable value yields nil.
func (w *Web3BigInt) BigInt() *big.Int {
	amt, ok := new(big.Int).SetString(w.Value, 10)
	if !ok {
		return nil
	}
	return amt
}

// ToDecimal returns the human amount, Value / 10^Decimal, without rounding.
func (w *Web3BigInt) ToDecimal() decimal.Decimal {
	amt := w.BigInt()
	if amt == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amt, int32(-w.Decimal))
}
