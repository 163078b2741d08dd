package deposit

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	UserID int64  `json:"user_id" binding:"required" validate:"required,gt=0"`
	Chain  string `json:"chain" binding:"required" validate:"required,max=20"`
}

type AddressResponse struct {
	Address      string          `json:"address"`
	Chain        string          `json:"chain"`
	Status       string          `json:"status"`
	AddressIndex int64           `json:"address_index"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	Tokens       []string        `json:"tokens"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type CheckResponse struct {
	Status           PaymentStatus    `json:"status"`
	Chain            string           `json:"chain"`
	Address          string           `json:"address"`
	Coin             string           `json:"coin,omitempty"`
	TxHash           string           `json:"tx_hash,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	AlreadyConfirmed bool             `json:"already_confirmed"`
	InviteLink       string           `json:"invite_link,omitempty"`
}

type AccessResponse struct {
	HasAccess  bool   `json:"has_access"`
	InviteLink string `json:"invite_link,omitempty"`
}

type ChainResponse struct {
	ID     string   `json:"id"`
	Tokens []string `json:"tokens"`
}
