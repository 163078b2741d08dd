package evmrpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

const rateBurst = 5

type EvmRPC struct {
	chain   chains.Chain
	client  *ethclient.Client
	limiter *rate.Limiter
	logger  *logger.Logger
}

func New(ctx context.Context, cfg chainregistry.ChainConfig, rps float64, logger *logger.Logger) (*EvmRPC, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s rpc", cfg.ID)
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &EvmRPC{
		chain:   cfg.ID,
		client:  client,
		limiter: rate.NewLimiter(limit, rateBurst),
		logger:  logger,
	}, nil
}

// NewDialer returns the production Dialer, sharing the configured rate
// limit across every chain client it opens.
func NewDialer(appConfig *config.AppConfig, logger *logger.Logger) Dialer {
	return func(ctx context.Context, cfg chainregistry.ChainConfig) (IEvmRPC, error) {
		return New(ctx, cfg, appConfig.RPC.RateLimit, logger)
	}
}

func (e *EvmRPC) BlockNumber(ctx context.Context) (uint64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	height, err := e.client.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "%s eth_blockNumber", e.chain)
	}
	return height, nil
}

func (e *EvmRPC) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := erc20.Pack("decimals")
	if err != nil {
		return 0, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "%s decimals() on %s", e.chain, token.Hex())
	}

	values, err := erc20.Unpack("decimals", out)
	if err != nil {
		return 0, errors.Wrapf(err, "%s decode decimals() on %s", e.chain, token.Hex())
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, errors.Errorf("%s decimals() on %s returned %T", e.chain, token.Hex(), values[0])
	}
	return decimals, nil
}

// TransfersTo returns Transfer events of token to the given recipient within
// [fromBlock, toBlock], in the order the node returned them.
func (e *EvmRPC) TransfersTo(ctx context.Context, token, to common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{token},
		Topics: [][]common.Hash{
			{TransferTopic},
			nil,
			{common.BytesToHash(to.Bytes())},
		},
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	logs, err := e.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "%s eth_getLogs %s [%d, %d]", e.chain, token.Hex(), fromBlock, toBlock)
	}

	events := make([]model.TransferEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := decodeTransfer(lg)
		if err != nil {
			e.logger.Debug("[EvmRPC][TransfersTo][decodeTransfer]", map[string]string{
				"chain": e.chain.String(),
				"error": err.Error(),
			})
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (e *EvmRPC) Close() {
	e.client.Close()
}
