package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TransferEvent is a decoded ERC20 Transfer log.
type TransferEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
	From        common.Address
	To          common.Address
	Value       *big.Int
}

type ScanOutcome string

const (
	ScanOutcomeFound    ScanOutcome = "found"
	ScanOutcomeNotFound ScanOutcome = "not_found"
)

// DetectedPayment is the qualifying transfer a scan settled on.
type DetectedPayment struct {
	Coin        string
	TxHash      string
	Amount      decimal.Decimal
	RawAmount   *Web3BigInt
	BlockNumber uint64
}

// ScanResult is either Found, with Payment set, or NotFound.
type ScanResult struct {
	Outcome ScanOutcome
	Payment *DetectedPayment
}

func Found(payment DetectedPayment) *ScanResult {
	return &ScanResult{Outcome: ScanOutcomeFound, Payment: &payment}
}

func NotFound() *ScanResult {
	return &ScanResult{Outcome: ScanOutcomeNotFound}
}

func (r *ScanResult) IsFound() bool {
	return r != nil && r.Outcome == ScanOutcomeFound && r.Payment != nil
}

// PaymentCheck is what a reconciliation reports back to the caller. Deposit
// holds the confirmed row when Outcome is found.
type PaymentCheck struct {
	Outcome          ScanOutcome
	Deposit          *Deposit
	AlreadyConfirmed bool
}
