package monitoring

import (
	"time"
)

// CircuitBreakerConfig defines the configuration for circuit breakers
type CircuitBreakerConfig struct {
	MaxRequests                 uint32        `json:"max_requests"`
	Interval                    time.Duration `json:"interval"`
	Timeout                     time.Duration `json:"timeout"`
	ConsecutiveFailureThreshold int           `json:"consecutive_failure_threshold"`
}

// APIErrorType classifies failed external calls for metrics labels
type APIErrorType string

const (
	ErrorTypeTimeout      APIErrorType = "timeout"
	ErrorTypeRateLimited  APIErrorType = "rate_limited"
	ErrorTypeNetworkError APIErrorType = "network_error"
	ErrorTypeServerError  APIErrorType = "server_error"
	ErrorTypeClientError  APIErrorType = "client_error"
	ErrorTypeBreakerOpen  APIErrorType = "breaker_open"
	ErrorTypeUnknown      APIErrorType = "unknown"
)

// CircuitBreakerConfigs provides default configurations per external service
var CircuitBreakerConfigs = map[string]CircuitBreakerConfig{
	"evm_rpc": {
		MaxRequests:                 3,
		Interval:                    45 * time.Second,
		Timeout:                     60 * time.Second,
		ConsecutiveFailureThreshold: 5,
	},
	"paid_webhook": {
		MaxRequests:                 1,
		Interval:                    time.Minute,
		Timeout:                     2 * time.Minute,
		ConsecutiveFailureThreshold: 3,
	},
}
