package controller

import (
	"context"

	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/webhook"
)

type IController interface {
	// RequestAddress returns the user's paid deposit on chain if there is one,
	// else their pending deposit, deriving a fresh address if there is none
	RequestAddress(ctx context.Context, userID int64, chain chains.Chain) (*model.Deposit, error)

	// CheckPayment scans the pending deposit address and confirms it once a
	// qualifying transfer is seen
	CheckPayment(ctx context.Context, userID int64, chain chains.Chain) (*model.PaymentCheck, error)

	// HasAccess reports whether the user has paid on any chain
	HasAccess(ctx context.Context, userID int64) (bool, error)

	// SweepPending re-checks a batch of pending deposits in the background
	SweepPending(ctx context.Context) error

	// Close waits for in-flight paid notifications
	Close()
}

// Notifier delivers the paid event to the downstream service.
type Notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, webhookURL string, payload webhook.PaymentConfirmed) (string, error)
	CallUptimeWebhook(ctx context.Context, webhookURL string)
}

// Locker serialises sweeps across replicas.
type Locker interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
