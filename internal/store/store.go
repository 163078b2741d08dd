package store

import (
	"github.com/dwarvesf/paywall-backend/internal/store/deposit"
)

type Store struct {
	Deposit deposit.IStore
}

func New() *Store {
	return &Store{
		Deposit: deposit.New(),
	}
}
