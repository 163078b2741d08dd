package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwarvesf/paywall-backend/internal/types/chains"
)

type DepositStatus string

const (
	DepositStatusPending DepositStatus = "pending"
	DepositStatusPaid    DepositStatus = "paid"
)

// Deposit is one address assignment for a user on a chain. At most one
// pending row exists per (user, chain); rows are never deleted.
type Deposit struct {
	ID             int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID         int64               `gorm:"column:user_id;not null;uniqueIndex:uniq_deposits_pending_user_chain,where:status = 'pending'" json:"user_id"`
	Chain          chains.Chain        `gorm:"column:chain;type:varchar(20);not null;uniqueIndex:uniq_deposits_pending_user_chain,where:status = 'pending'" json:"chain"`
	Address        string              `gorm:"column:address;type:varchar(64);not null;uniqueIndex" json:"address"`
	AddressIndex   int64               `gorm:"column:address_index;not null;uniqueIndex" json:"address_index"`
	Status         DepositStatus       `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	CoinType       *string             `gorm:"column:coin_type;type:varchar(10)" json:"coin_type,omitempty"`
	TxHash         *string             `gorm:"column:tx_hash;type:varchar(80)" json:"tx_hash,omitempty"`
	AmountReceived decimal.NullDecimal `gorm:"column:amount_received;type:numeric(36,18)" json:"amount_received"`
	CreatedAt      time.Time           `gorm:"column:created_at;not null" json:"created_at"`
	PaidAt         *time.Time          `gorm:"column:paid_at" json:"paid_at,omitempty"`
}

func (Deposit) TableName() string {
	return "deposits"
}

func (d *Deposit) IsPaid() bool {
	return d.Status == DepositStatusPaid
}
