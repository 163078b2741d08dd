package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// ExternalAPIMetrics contains all metrics for external API monitoring
type ExternalAPIMetrics struct {
	apiDuration         *prometheus.HistogramVec
	apiCalls            *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
	timeouts            *prometheus.CounterVec
}

// NewExternalAPIMetrics creates a new instance of external API metrics
func NewExternalAPIMetrics() *ExternalAPIMetrics {
	return &ExternalAPIMetrics{
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paywall_external_api_duration_seconds",
				Help:    "Duration of external API calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api_name", "endpoint", "status"},
		),
		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api_name", "status"},
		),
		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paywall_circuit_breaker_state",
				Help: "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"api_name"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_external_api_timeouts_total",
				Help: "Total number of external API timeouts",
			},
			[]string{"api_name", "endpoint"},
		),
	}
}

// MustRegister registers all metrics with the provided registry
func (m *ExternalAPIMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.apiDuration,
		m.apiCalls,
		m.circuitBreakerState,
		m.timeouts,
	)
}

// RecordAPICall records an API call with duration and status
func (m *ExternalAPIMetrics) RecordAPICall(apiName, endpoint, status string, duration float64) {
	m.apiDuration.WithLabelValues(apiName, endpoint, status).Observe(duration)
	m.apiCalls.WithLabelValues(apiName, status).Inc()
}

// UpdateCircuitBreakerState updates the circuit breaker state metric
func (m *ExternalAPIMetrics) UpdateCircuitBreakerState(apiName string, state gobreaker.State) {
	m.circuitBreakerState.WithLabelValues(apiName).Set(float64(state))
}

// RecordTimeout records a timeout event
func (m *ExternalAPIMetrics) RecordTimeout(apiName, endpoint string) {
	m.timeouts.WithLabelValues(apiName, endpoint).Inc()
}

// PaymentMetrics tracks the deposit lifecycle
type PaymentMetrics struct {
	addressesCreated  *prometheus.CounterVec
	paymentChecks     *prometheus.CounterVec
	paymentsConfirmed *prometheus.CounterVec
	pendingDeposits   *prometheus.GaugeVec
}

func NewPaymentMetrics() *PaymentMetrics {
	return &PaymentMetrics{
		addressesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_deposit_addresses_created_total",
				Help: "Deposit addresses handed out, new or reused",
			},
			[]string{"chain"},
		),
		paymentChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_payment_checks_total",
				Help: "Payment checks by outcome",
			},
			[]string{"chain", "outcome"},
		),
		paymentsConfirmed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_payments_confirmed_total",
				Help: "Deposits transitioned to paid",
			},
			[]string{"chain", "coin"},
		),
		pendingDeposits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paywall_pending_deposits",
				Help: "Pending deposits per chain, as seen by the last sweep",
			},
			[]string{"chain"},
		),
	}
}

func (m *PaymentMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.addressesCreated,
		m.paymentChecks,
		m.paymentsConfirmed,
		m.pendingDeposits,
	)
}

func (m *PaymentMetrics) RecordAddressIssued(chain string) {
	m.addressesCreated.WithLabelValues(chain).Inc()
}

func (m *PaymentMetrics) RecordCheck(chain, outcome string) {
	m.paymentChecks.WithLabelValues(chain, outcome).Inc()
}

func (m *PaymentMetrics) RecordConfirmed(chain, coin string) {
	m.paymentsConfirmed.WithLabelValues(chain, coin).Inc()
}

func (m *PaymentMetrics) SetPendingDeposits(chain string, count int64) {
	m.pendingDeposits.WithLabelValues(chain).Set(float64(count))
}
