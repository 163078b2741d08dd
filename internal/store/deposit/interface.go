package deposit

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
)

// AllocateFunc reserves a derivation index and returns the address derived
// from it.
type AllocateFunc func() (address string, index int64, err error)

type IStore interface {
	// NextAddressIndex atomically takes the next unused derivation index
	NextAddressIndex(tx *gorm.DB) (int64, error)

	// EnsureSequence creates the index sequence row, starting after any
	// index already recorded in deposits
	EnsureSequence(tx *gorm.DB) error

	// GetOrCreatePending returns the user's pending deposit on chain,
	// creating it with allocate if there is none
	GetOrCreatePending(tx *gorm.DB, userID int64, chain chains.Chain, allocate AllocateFunc) (*model.Deposit, error)

	GetPending(tx *gorm.DB, userID int64, chain chains.Chain) (*model.Deposit, error)
	GetLatestPaid(tx *gorm.DB, userID int64, chain chains.Chain) (*model.Deposit, error)
	GetByID(tx *gorm.DB, id int64) (*model.Deposit, error)

	// Confirm moves a pending deposit to paid. It returns
	// consts.ErrAlreadyConfirmed, leaving the row untouched, if it is paid already
	Confirm(tx *gorm.DB, id int64, txHash string, amount decimal.Decimal, coinType string) error

	HasPaid(tx *gorm.DB, userID int64) (bool, error)

	// ListPending returns the oldest pending deposits first
	ListPending(tx *gorm.DB, limit int) ([]model.Deposit, error)
	CountPendingByChain(tx *gorm.DB) (map[chains.Chain]int64, error)
}
