package consts

import "errors"

var (
	// ErrConfiguration is fatal at startup: missing master secret, malformed
	// chain registry or payment thresholds.
	ErrConfiguration = errors.New("configuration error")

	ErrUnknownChain     = errors.New("unknown chain")
	ErrNoPendingDeposit = errors.New("no pending deposit")

	// ErrAlreadyConfirmed is returned when a deposit is confirmed a second
	// time. Callers treat it as success and read back the stored payment.
	ErrAlreadyConfirmed = errors.New("deposit already confirmed")
)
