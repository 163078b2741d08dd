package monitoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/evmrpc"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

// CircuitBreakerEvmRPC wraps evmrpc.IEvmRPC for a single chain with circuit breaker functionality
type CircuitBreakerEvmRPC struct {
	wrapped        evmrpc.IEvmRPC
	apiName        string
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
}

// BreakerReporter exposes breaker states keyed by api name.
type BreakerReporter interface {
	BreakerStates() map[string]gobreaker.State
}

// EvmBreakers owns one breaker per chain. Clients dialled for the same chain
// share it, so failures keep counting across re-dials.
type EvmBreakers struct {
	config  CircuitBreakerConfig
	metrics *ExternalAPIMetrics
	logger  *logger.Logger

	mu       sync.Mutex
	breakers map[chains.Chain]*gobreaker.CircuitBreaker
}

func NewEvmBreakers(config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *EvmBreakers {
	return &EvmBreakers{
		config:   config,
		metrics:  metrics,
		logger:   logger,
		breakers: make(map[chains.Chain]*gobreaker.CircuitBreaker),
	}
}

func evmAPIName(chain chains.Chain) string {
	return "evm_rpc_" + strings.ToLower(chain.String())
}

func (b *EvmBreakers) breaker(chain chains.Chain) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[chain]; ok {
		return cb
	}
	cb := newBreaker(evmAPIName(chain), b.config, b.metrics, b.logger)
	b.breakers[chain] = cb
	return cb
}

// Wrap guards client with the chain's breaker.
func (b *EvmBreakers) Wrap(client evmrpc.IEvmRPC, chain chains.Chain) *CircuitBreakerEvmRPC {
	return &CircuitBreakerEvmRPC{
		wrapped:        client,
		apiName:        evmAPIName(chain),
		circuitBreaker: b.breaker(chain),
		metrics:        b.metrics,
		logger:         b.logger,
	}
}

// WrapDialer returns a dialer whose clients are guarded by their chain's breaker.
func (b *EvmBreakers) WrapDialer(dial evmrpc.Dialer) evmrpc.Dialer {
	return func(ctx context.Context, cfg chainregistry.ChainConfig) (evmrpc.IEvmRPC, error) {
		client, err := dial(ctx, cfg)
		if err != nil {
			b.metrics.RecordAPICall(evmAPIName(cfg.ID), "dial", "error", 0)
			return nil, err
		}
		return b.Wrap(client, cfg.ID), nil
	}
}

func (b *EvmBreakers) BreakerStates() map[string]gobreaker.State {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make(map[string]gobreaker.State, len(b.breakers))
	for chain, cb := range b.breakers {
		states[evmAPIName(chain)] = cb.State()
	}
	return states
}

// IsBreakerOpen reports whether err was returned by a breaker refusing the call.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func newBreaker(apiName string, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        apiName,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		// a caller giving up is not a node failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state change", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(name, to)
		},
	}

	metrics.UpdateCircuitBreakerState(apiName, gobreaker.StateClosed)
	return gobreaker.NewCircuitBreaker(settings)
}

func (cb *CircuitBreakerEvmRPC) execute(ctx context.Context, operation string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()

	result, err := cb.circuitBreaker.Execute(fn)

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cb.metrics.RecordTimeout(cb.apiName, operation)
		}
		cb.logError(operation, duration, err)
	}
	cb.metrics.RecordAPICall(cb.apiName, operation, status, duration)
	return result, err
}

func (cb *CircuitBreakerEvmRPC) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := cb.execute(ctx, "block_number", func() (interface{}, error) {
		return cb.wrapped.BlockNumber(ctx)
	})
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

func (cb *CircuitBreakerEvmRPC) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	result, err := cb.execute(ctx, "token_decimals", func() (interface{}, error) {
		return cb.wrapped.TokenDecimals(ctx, token)
	})
	if err != nil {
		return 0, err
	}
	return result.(uint8), nil
}

func (cb *CircuitBreakerEvmRPC) TransfersTo(ctx context.Context, token, to common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	result, err := cb.execute(ctx, "transfers_to", func() (interface{}, error) {
		return cb.wrapped.TransfersTo(ctx, token, to, fromBlock, toBlock)
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.TransferEvent), nil
}

func (cb *CircuitBreakerEvmRPC) Close() {
	cb.wrapped.Close()
}

func (cb *CircuitBreakerEvmRPC) logError(operation string, duration float64, err error) {
	cb.logger.Error("External API call failed", map[string]string{
		"api":        cb.apiName,
		"operation":  operation,
		"duration":   time.Duration(duration * float64(time.Second)).String(),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
	})
}

// classifyError categorizes errors for metrics and logging
func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}
	if IsBreakerOpen(err) {
		return ErrorTypeBreakerOpen
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	case containsAny(errMsg, "timeout", "deadline exceeded", "context canceled"):
		return ErrorTypeTimeout
	case containsAny(errMsg, "429", "too many requests", "rate limit"):
		return ErrorTypeRateLimited
	case containsAny(errMsg, "network", "connection", "unreachable", "dns", "no such host"):
		return ErrorTypeNetworkError
	case containsAny(errMsg, "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"):
		return ErrorTypeServerError
	case containsAny(errMsg, "400", "401", "403", "404", "bad request", "unauthorized", "forbidden", "not found"):
		return ErrorTypeClientError
	}
	return ErrorTypeUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func validateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return errors.New("max requests must be greater than 0")
	}
	if config.ConsecutiveFailureThreshold <= 0 {
		return errors.New("consecutive failure threshold must be greater than 0")
	}
	if config.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	if config.Interval < 0 {
		return errors.New("interval must be non-negative")
	}
	return nil
}

// BreakerConfigFor returns the named default, validated.
func BreakerConfigFor(name string) (CircuitBreakerConfig, error) {
	config, ok := CircuitBreakerConfigs[name]
	if !ok {
		return CircuitBreakerConfig{}, errors.Errorf("no circuit breaker config named %q", name)
	}
	if err := validateCircuitBreakerConfig(config); err != nil {
		return CircuitBreakerConfig{}, errors.Wrap(err, name)
	}
	return config, nil
}
