package scanner

import (
	"context"

	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
)

// IScanner looks for a qualifying stablecoin transfer to one address.
type IScanner interface {
	// Scan returns an error only for a chain that is not registered. RPC
	// trouble of any kind is reported as NotFound.
	Scan(ctx context.Context, chain chains.Chain, address string) (*model.ScanResult, error)
	// BlockHeight reads the chain head, used by health probes.
	BlockHeight(ctx context.Context, chain chains.Chain) (uint64, error)
	Close()
}
