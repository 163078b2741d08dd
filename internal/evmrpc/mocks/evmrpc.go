package mocks

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/dwarvesf/paywall-backend/internal/model"
)

// EvmRPC is a testify mock of evmrpc.IEvmRPC.
type EvmRPC struct {
	mock.Mock
}

func (m *EvmRPC) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *EvmRPC) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *EvmRPC) TransfersTo(ctx context.Context, token, to common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	args := m.Called(ctx, token, to, fromBlock, toBlock)
	events, _ := args.Get(0).([]model.TransferEvent)
	return events, args.Error(1)
}

func (m *EvmRPC) Close() {
	m.Called()
}
