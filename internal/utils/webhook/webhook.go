package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

const EventPaymentConfirmed = "payment.confirmed"

// Client makes outbound webhook calls: uptime heartbeats and payment
// notifications.
type Client struct {
	httpClient *resty.Client
	logger     *logger.Logger
}

// PaymentConfirmed is the body posted when a deposit becomes paid.
type PaymentConfirmed struct {
	DeliveryID     string          `json:"delivery_id"`
	Event          string          `json:"event"`
	DepositID      int64           `json:"deposit_id"`
	UserID         int64           `json:"user_id"`
	Chain          string          `json:"chain"`
	Address        string          `json:"address"`
	Coin           string          `json:"coin"`
	TxHash         string          `json:"tx_hash"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	// on-chain integer value and token decimals of the transfer
	RawAmount *model.Web3BigInt `json:"raw_amount,omitempty"`
	PaidAt    time.Time         `json:"paid_at"`
}

func New(logger *logger.Logger) *Client {
	return &Client{
		httpClient: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			}),
		logger: logger,
	}
}

// CallUptimeWebhook pings a heartbeat URL. Failures are logged only.
func (c *Client) CallUptimeWebhook(ctx context.Context, webhookURL string) {
	if webhookURL == "" {
		return
	}

	resp, err := c.httpClient.R().SetContext(ctx).Get(webhookURL)
	if err != nil {
		c.logger.Error("Failed to call uptime webhook", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}

	c.logger.Debug("Called uptime webhook", map[string]string{
		"url":         webhookURL,
		"status_code": resp.Status(),
	})
}

// NotifyPaymentConfirmed posts the event and returns the delivery id it used.
// Receivers deduplicate on delivery_id since retries resend the same body.
func (c *Client) NotifyPaymentConfirmed(ctx context.Context, webhookURL string, payload PaymentConfirmed) (string, error) {
	if webhookURL == "" {
		return "", nil
	}
	if payload.DeliveryID == "" {
		payload.DeliveryID = uuid.NewString()
	}
	payload.Event = EventPaymentConfirmed

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Delivery-ID", payload.DeliveryID).
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		return payload.DeliveryID, errors.Wrap(err, "post payment webhook")
	}
	if resp.IsError() {
		return payload.DeliveryID, errors.Errorf("payment webhook returned status %d", resp.StatusCode())
	}
	return payload.DeliveryID, nil
}
