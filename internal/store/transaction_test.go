package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/store/storetest"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
)

func countDeposits(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Deposit{}).Count(&n).Error)
	return n
}

func TestDoInTx(t *testing.T) {
	db := storetest.NewSQLite(t, 0)
	insert := func(tx *gorm.DB, address string, index int64) error {
		return tx.Create(&model.Deposit{UserID: 1, Chain: chains.Polygon, Address: address, AddressIndex: index, Status: model.DepositStatusPaid}).Error
	}

	err := DoInTx(db, func(tx *gorm.DB) error {
		return insert(tx, "0xa", 1)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countDeposits(t, db))

	err = DoInTx(db, func(tx *gorm.DB) error {
		if err := insert(tx, "0xb", 2); err != nil {
			return err
		}
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")
	assert.Equal(t, int64(1), countDeposits(t, db))

	assert.Panics(t, func() {
		_ = DoInTx(db, func(tx *gorm.DB) error {
			_ = insert(tx, "0xc", 3)
			panic("boom")
		})
	})
	assert.Equal(t, int64(1), countDeposits(t, db))
}
