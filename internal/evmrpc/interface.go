package evmrpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/model"
)

// IEvmRPC is the read-only slice of an EVM node the payment scanner needs.
type IEvmRPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TransfersTo(ctx context.Context, token, to common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error)
	Close()
}

// Dialer opens a client for one registered chain.
type Dialer func(ctx context.Context, cfg chainregistry.ChainConfig) (IEvmRPC, error)
