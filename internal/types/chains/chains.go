package chains

import "strings"

type Chain string

const (
	Ethereum Chain = "ETH"
	Polygon  Chain = "POLYGON"
	Base     Chain = "BASE"
	Arbitrum Chain = "ARBITRUM"
)

// Builtin lists the chains that have default scan windows, in display order.
var Builtin = []Chain{Ethereum, Polygon, Base, Arbitrum}

// Parse normalises a chain id received from a caller. It does not check
// whether the chain is registered.
func Parse(s string) Chain {
	return Chain(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Chain) String() string {
	return string(c)
}
