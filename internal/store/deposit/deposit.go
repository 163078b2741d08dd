package deposit

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
)

type store struct {
	sequence string
}

func New() IStore {
	return &store{sequence: consts.EVMSequenceName}
}

// NextAddressIndex increments and reads the counter in one statement, so
// concurrent callers can never observe the same value.
func (s *store) NextAddressIndex(tx *gorm.DB) (int64, error) {
	var taken []int64
	err := tx.Raw(
		"UPDATE address_index_sequences SET next_value = next_value + 1 WHERE name = ? RETURNING next_value - 1",
		s.sequence,
	).Scan(&taken).Error
	if err != nil {
		return 0, errors.Wrap(err, "advance address index sequence")
	}
	if len(taken) == 0 {
		return 0, errors.Errorf("address index sequence %q is missing", s.sequence)
	}
	return taken[0], nil
}

func (s *store) EnsureSequence(tx *gorm.DB) error {
	var next int64
	err := tx.Model(&model.Deposit{}).Select("COALESCE(MAX(address_index) + 1, 0)").Scan(&next).Error
	if err != nil {
		return errors.Wrap(err, "read highest address index")
	}

	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.AddressIndexSequence{Name: s.sequence, NextValue: next}).Error
}

func (s *store) GetOrCreatePending(tx *gorm.DB, userID int64, chain chains.Chain, allocate AllocateFunc) (*model.Deposit, error) {
	existing, err := s.GetPending(tx, userID, chain)
	if err != nil || existing != nil {
		return existing, err
	}

	address, index, err := allocate()
	if err != nil {
		return nil, errors.Wrap(err, "allocate deposit address")
	}

	// the partial unique index on (user_id, chain) turns a lost race into a no-op
	d := &model.Deposit{
		UserID:       userID,
		Chain:        chain,
		Address:      address,
		AddressIndex: index,
		Status:       model.DepositStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(d).Error; err != nil {
		return nil, errors.Wrap(err, "insert pending deposit")
	}

	winner, err := s.GetPending(tx, userID, chain)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		// the insert hit the address or index constraint instead
		return nil, errors.Errorf("address index %d already assigned", index)
	}
	return winner, nil
}

func (s *store) GetPending(tx *gorm.DB, userID int64, chain chains.Chain) (*model.Deposit, error) {
	return first(tx.Where("user_id = ? AND chain = ? AND status = ?", userID, chain, model.DepositStatusPending))
}

func (s *store) GetLatestPaid(tx *gorm.DB, userID int64, chain chains.Chain) (*model.Deposit, error) {
	return first(tx.Where("user_id = ? AND chain = ? AND status = ?", userID, chain, model.DepositStatusPaid).
		Order("paid_at DESC"))
}

func (s *store) GetByID(tx *gorm.DB, id int64) (*model.Deposit, error) {
	var d model.Deposit
	if err := tx.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *store) Confirm(tx *gorm.DB, id int64, txHash string, amount decimal.Decimal, coinType string) error {
	result := tx.Model(&model.Deposit{}).
		Where("id = ? AND status = ?", id, model.DepositStatusPending).
		Updates(map[string]interface{}{
			"status":          model.DepositStatusPaid,
			"tx_hash":         txHash,
			"amount_received": amount,
			"coin_type":       coinType,
			"paid_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "confirm deposit")
	}
	if result.RowsAffected == 1 {
		return nil
	}

	current, err := s.GetByID(tx, id)
	if err != nil {
		return err
	}
	if current.IsPaid() {
		return consts.ErrAlreadyConfirmed
	}
	return errors.Errorf("deposit %d was not confirmed", id)
}

func (s *store) HasPaid(tx *gorm.DB, userID int64) (bool, error) {
	var count int64
	err := tx.Model(&model.Deposit{}).
		Where("user_id = ? AND status = ?", userID, model.DepositStatusPaid).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *store) ListPending(tx *gorm.DB, limit int) ([]model.Deposit, error) {
	var deposits []model.Deposit
	err := tx.Where("status = ?", model.DepositStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&deposits).Error
	return deposits, err
}

func (s *store) CountPendingByChain(tx *gorm.DB) (map[chains.Chain]int64, error) {
	var rows []struct {
		Chain chains.Chain
		Total int64
	}
	err := tx.Model(&model.Deposit{}).
		Select("chain, COUNT(*) AS total").
		Where("status = ?", model.DepositStatusPending).
		Group("chain").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[chains.Chain]int64, len(rows))
	for _, row := range rows {
		counts[row.Chain] = row.Total
	}
	return counts, nil
}

// first returns nil, nil when nothing matches.
func first(query *gorm.DB) (*model.Deposit, error) {
	var d model.Deposit
	err := query.First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
