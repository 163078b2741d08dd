package consts

const (
	// DefaultTokenDecimals is used when a token's decimals() read fails.
	DefaultTokenDecimals = 6

	// EVMSequenceName is the address_index_sequences row shared by every
	// EVM chain, since they all derive from coin type 60.
	EVMSequenceName = "evm"

	TokenUSDT = "USDT"
	TokenUSDC = "USDC"

	PaymentNotDetectedMessage = "Payment not detected yet. Please ensure your transaction has been confirmed on the blockchain and try again in a few minutes."
)

// SweepJobName identifies the pending-deposit sweep in job monitoring.
const SweepJobName = "payment_sweep"
