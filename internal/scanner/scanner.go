package scanner

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/evmrpc"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

const decimalsCacheTTL = 24 * time.Hour

type Scanner struct {
	registry  chainregistry.IRegistry
	dial      evmrpc.Dialer
	threshold decimal.Decimal
	margin    decimal.Decimal
	timeout   time.Duration
	logger    *logger.Logger
	recorder  *monitoring.BusinessMetricsRecorder

	// token decimals keyed by chain:contract
	decimals *cache.Cache

	mu      sync.Mutex
	clients map[chains.Chain]evmrpc.IEvmRPC
	// serialises dials per chain so a slow node only blocks its own chain
	dialLocks map[chains.Chain]*sync.Mutex
}

// New builds a scanner. recorder may be nil.
func New(
	registry chainregistry.IRegistry,
	dial evmrpc.Dialer,
	appConfig *config.AppConfig,
	logger *logger.Logger,
	recorder *monitoring.BusinessMetricsRecorder,
) *Scanner {
	return &Scanner{
		registry:  registry,
		dial:      dial,
		threshold: appConfig.Payment.MinAmount,
		margin:    appConfig.Payment.ToleranceMargin,
		timeout:   appConfig.RPC.Timeout,
		logger:    logger,
		recorder:  recorder,
		decimals:  cache.New(decimalsCacheTTL, time.Hour),
		clients:   make(map[chains.Chain]evmrpc.IEvmRPC),
		dialLocks: make(map[chains.Chain]*sync.Mutex),
	}
}

func (s *Scanner) Scan(ctx context.Context, chain chains.Chain, address string) (result *model.ScanResult, err error) {
	cfg, err := s.registry.Get(chain)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[Scanner][Scan] recovered from panic", map[string]string{
				"chain":   chain.String(),
				"address": address,
				"panic":   fmt.Sprintf("%v", r),
			})
			result, err = model.NotFound(), nil
		}
		if s.recorder != nil {
			s.recorder.RecordScan(chain.String(), string(result.Outcome), time.Since(start).Seconds())
		}
	}()

	if !common.IsHexAddress(address) {
		s.logger.Error("[Scanner][Scan] malformed address", map[string]string{
			"chain":   chain.String(),
			"address": address,
		})
		return model.NotFound(), nil
	}
	target := common.HexToAddress(address)

	client, err := s.client(ctx, cfg)
	if err != nil {
		s.logger.Error("[Scanner][Scan] rpc unavailable", map[string]string{
			"chain": chain.String(),
			"error": err.Error(),
		})
		return model.NotFound(), nil
	}

	height, err := s.blockNumber(ctx, client)
	if err != nil {
		s.logger.Error("[Scanner][Scan] BlockNumber failed", map[string]string{
			"chain": chain.String(),
			"error": err.Error(),
		})
		s.dropClient(chain, client, err)
		return model.NotFound(), nil
	}

	var from uint64
	if height > cfg.ScanBlocks {
		from = height - cfg.ScanBlocks
	}

	for _, token := range cfg.Tokens {
		decimals := s.tokenDecimals(ctx, cfg.ID, client, token)
		minRaw := MinimumRawAmount(s.threshold, s.margin, decimals)

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		events, err := client.TransfersTo(callCtx, token.Contract, target, from, height)
		cancel()
		if err != nil {
			s.logger.Error("[Scanner][Scan] TransfersTo failed", map[string]string{
				"chain": chain.String(),
				"token": token.Symbol,
				"error": err.Error(),
			})
			continue
		}

		for _, ev := range events {
			if ev.To != target || ev.Value == nil || ev.BlockNumber < from {
				continue
			}
			if ev.Value.Cmp(minRaw) < 0 {
				continue
			}

			raw := model.NewWeb3BigInt(ev.Value, int(decimals))
			s.logger.Info("[Scanner][Scan] payment found", map[string]string{
				"chain":   chain.String(),
				"address": target.Hex(),
				"token":   token.Symbol,
				"tx_hash": ev.TxHash.Hex(),
				"value":   ev.Value.String(),
			})
			return model.Found(model.DetectedPayment{
				Coin:        token.Symbol,
				TxHash:      ev.TxHash.Hex(),
				Amount:      raw.ToDecimal(),
				RawAmount:   raw,
				BlockNumber: ev.BlockNumber,
			}), nil
		}
	}

	s.logger.Debug("[Scanner][Scan] no qualifying transfer", map[string]string{
		"chain":      chain.String(),
		"address":    target.Hex(),
		"from_block": strconv.FormatUint(from, 10),
		"to_block":   strconv.FormatUint(height, 10),
	})
	return model.NotFound(), nil
}

func (s *Scanner) BlockHeight(ctx context.Context, chain chains.Chain) (uint64, error) {
	cfg, err := s.registry.Get(chain)
	if err != nil {
		return 0, err
	}
	client, err := s.client(ctx, cfg)
	if err != nil {
		return 0, err
	}
	height, err := s.blockNumber(ctx, client)
	if err != nil {
		s.dropClient(chain, client, err)
		return 0, err
	}
	return height, nil
}

// Close releases every cached RPC client.
func (s *Scanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, client := range s.clients {
		client.Close()
		delete(s.clients, id)
	}
}

func (s *Scanner) client(ctx context.Context, cfg chainregistry.ChainConfig) (evmrpc.IEvmRPC, error) {
	lock := s.dialLock(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	client, ok := s.clients[cfg.ID]
	s.mu.Unlock()
	if ok {
		return client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	client, err := s.dial(dialCtx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.ID)
	}

	s.mu.Lock()
	s.clients[cfg.ID] = client
	s.mu.Unlock()
	return client, nil
}

func (s *Scanner) dialLock(chain chains.Chain) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.dialLocks[chain]
	if !ok {
		lock = &sync.Mutex{}
		s.dialLocks[chain] = lock
	}
	return lock
}

// dropClient forgets a client that failed so the next scan redials. A call
// refused by an open breaker keeps the client, since the node was never
// reached. It is a no-op if another caller already replaced it.
func (s *Scanner) dropClient(chain chains.Chain, client evmrpc.IEvmRPC, cause error) {
	if monitoring.IsBreakerOpen(cause) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.clients[chain]; ok && current == client {
		delete(s.clients, chain)
		client.Close()
	}
}

func (s *Scanner) blockNumber(ctx context.Context, client evmrpc.IEvmRPC) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return client.BlockNumber(callCtx)
}

func (s *Scanner) tokenDecimals(ctx context.Context, chain chains.Chain, client evmrpc.IEvmRPC, token chainregistry.Token) uint8 {
	key := chain.String() + ":" + token.Contract.Hex()
	if v, ok := s.decimals.Get(key); ok {
		s.recordCache("hit")
		return v.(uint8)
	}
	s.recordCache("miss")

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	decimals, err := client.TokenDecimals(callCtx, token.Contract)
	if err != nil {
		s.logger.Error("[Scanner][tokenDecimals] falling back to default", map[string]string{
			"chain": chain.String(),
			"token": token.Symbol,
			"error": err.Error(),
		})
		return consts.DefaultTokenDecimals
	}

	s.decimals.Set(key, decimals, cache.DefaultExpiration)
	return decimals
}

func (s *Scanner) recordCache(operation string) {
	if s.recorder != nil {
		s.recorder.RecordCacheOperation("token_decimals", operation)
	}
}
