package monitoring

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
	"github.com/dwarvesf/paywall-backend/internal/utils/webhook"
)

const paidWebhookAPIName = "paid_webhook"

// PaymentNotifier is the webhook surface the controller calls.
type PaymentNotifier interface {
	NotifyPaymentConfirmed(ctx context.Context, webhookURL string, payload webhook.PaymentConfirmed) (string, error)
	CallUptimeWebhook(ctx context.Context, webhookURL string)
}

// CircuitBreakerNotifier stops posting paid events to a receiver that keeps
// failing. Uptime pings pass straight through.
type CircuitBreakerNotifier struct {
	wrapped        PaymentNotifier
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
}

func NewCircuitBreakerNotifier(wrapped PaymentNotifier, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerNotifier {
	return &CircuitBreakerNotifier{
		wrapped:        wrapped,
		circuitBreaker: newBreaker(paidWebhookAPIName, config, metrics, logger),
		metrics:        metrics,
		logger:         logger,
	}
}

func (n *CircuitBreakerNotifier) NotifyPaymentConfirmed(ctx context.Context, webhookURL string, payload webhook.PaymentConfirmed) (string, error) {
	start := time.Now()

	var deliveryID string
	_, err := n.circuitBreaker.Execute(func() (interface{}, error) {
		id, err := n.wrapped.NotifyPaymentConfirmed(ctx, webhookURL, payload)
		deliveryID = id
		return nil, err
	})

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
		n.logger.Error("External API call failed", map[string]string{
			"api":        paidWebhookAPIName,
			"operation":  "notify_payment_confirmed",
			"error":      err.Error(),
			"error_type": string(classifyError(err)),
		})
	}
	n.metrics.RecordAPICall(paidWebhookAPIName, "notify_payment_confirmed", status, duration)
	return deliveryID, err
}

func (n *CircuitBreakerNotifier) CallUptimeWebhook(ctx context.Context, webhookURL string) {
	n.wrapped.CallUptimeWebhook(ctx, webhookURL)
}

func (n *CircuitBreakerNotifier) BreakerStates() map[string]gobreaker.State {
	return map[string]gobreaker.State{paidWebhookAPIName: n.circuitBreaker.State()}
}
