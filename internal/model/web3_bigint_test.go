package model

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWeb3BigInt_ToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		input    Web3BigInt
		expected string
	}{
		{name: "six decimals", input: Web3BigInt{Value: "20000000", Decimal: 6}, expected: "20"},
		{name: "zero value", input: Web3BigInt{Value: "0", Decimal: 18}, expected: "0"},
		{name: "eighteen decimals", input: Web3BigInt{Value: "14400000000000000000", Decimal: 18}, expected: "14.4"},
		{name: "fractional", input: Web3BigInt{Value: "14399999", Decimal: 6}, expected: "14.399999"},
		{name: "unparsable", input: Web3BigInt{Value: "abc", Decimal: 6}, expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.input.ToDecimal()
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s", got)
		})
	}
}

func TestNewWeb3BigInt(t *testing.T) {
	v := NewWeb3BigInt(big.NewInt(14400000), 6)
	assert.Equal(t, "14400000", v.Value)
	assert.Equal(t, 0, v.BigInt().Cmp(big.NewInt(14400000)))
}
