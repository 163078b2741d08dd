package controller

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/hdwallet"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/scanner"
	"github.com/dwarvesf/paywall-backend/internal/store"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
	"github.com/dwarvesf/paywall-backend/internal/utils/webhook"
)

const notifyTimeout = 30 * time.Second

type Controller struct {
	db       *gorm.DB
	store    *store.Store
	registry chainregistry.IRegistry
	deriver  hdwallet.IDeriver
	scanner  scanner.IScanner
	notifier Notifier
	metrics  *monitoring.PaymentMetrics
	locker   Locker
	logger   *logger.Logger
	config   *config.AppConfig

	notifications sync.WaitGroup
}

// New wires the reconciler. notifier, metrics and locker may be nil.
func New(
	db *gorm.DB,
	store *store.Store,
	registry chainregistry.IRegistry,
	deriver hdwallet.IDeriver,
	scanner scanner.IScanner,
	notifier Notifier,
	metrics *monitoring.PaymentMetrics,
	locker Locker,
	logger *logger.Logger,
	config *config.AppConfig,
) IController {
	return &Controller{
		db:       db,
		store:    store,
		registry: registry,
		deriver:  deriver,
		scanner:  scanner,
		notifier: notifier,
		metrics:  metrics,
		locker:   locker,
		logger:   logger,
		config:   config,
	}
}

func (c *Controller) RequestAddress(ctx context.Context, userID int64, chain chains.Chain) (*model.Deposit, error) {
	if !c.registry.Has(chain) {
		return nil, errors.Wrapf(consts.ErrUnknownChain, "chain %s", chain)
	}

	db := c.db.WithContext(ctx)

	// a user who already paid on this chain keeps that deposit
	paid, err := c.store.Deposit.GetLatestPaid(db, userID, chain)
	if err != nil {
		c.logger.Error("[RequestAddress][GetLatestPaid]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(userID, 10),
			"chain":   chain.String(),
		})
		return nil, err
	}
	if paid != nil {
		return paid, nil
	}

	var issued string
	deposit, err := c.store.Deposit.GetOrCreatePending(db, userID, chain, func() (string, int64, error) {
		index, err := c.store.Deposit.NextAddressIndex(db)
		if err != nil {
			return "", 0, err
		}
		if index < 0 || index > math.MaxUint32 {
			return "", 0, errors.Errorf("address index %d out of range", index)
		}
		address, err := c.deriver.Derive(uint32(index))
		if err != nil {
			return "", 0, err
		}
		issued = address
		return address, index, nil
	})
	if err != nil {
		c.logger.Error("[RequestAddress][GetOrCreatePending]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(userID, 10),
			"chain":   chain.String(),
		})
		return nil, err
	}

	// a concurrent request may have won the insert, leaving our index unused
	if issued != "" && deposit.Address == issued {
		if c.metrics != nil {
			c.metrics.RecordAddressIssued(chain.String())
		}
		c.logger.Info("[RequestAddress] deposit address issued", map[string]string{
			"user_id":       strconv.FormatInt(userID, 10),
			"chain":         chain.String(),
			"address":       deposit.Address,
			"address_index": strconv.FormatInt(deposit.AddressIndex, 10),
		})
	}

	return deposit, nil
}

func (c *Controller) CheckPayment(ctx context.Context, userID int64, chain chains.Chain) (*model.PaymentCheck, error) {
	if !c.registry.Has(chain) {
		return nil, errors.Wrapf(consts.ErrUnknownChain, "chain %s", chain)
	}

	db := c.db.WithContext(ctx)
	pending, err := c.store.Deposit.GetPending(db, userID, chain)
	if err != nil {
		c.logger.Error("[CheckPayment][GetPending]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(userID, 10),
		})
		return nil, err
	}

	if pending == nil {
		paid, err := c.store.Deposit.GetLatestPaid(db, userID, chain)
		if err != nil {
			c.logger.Error("[CheckPayment][GetLatestPaid]", map[string]string{
				"error":   err.Error(),
				"user_id": strconv.FormatInt(userID, 10),
			})
			return nil, err
		}
		if paid == nil {
			return nil, errors.Wrapf(consts.ErrNoPendingDeposit, "user %d on %s", userID, chain)
		}
		return &model.PaymentCheck{
			Outcome:          model.ScanOutcomeFound,
			Deposit:          paid,
			AlreadyConfirmed: true,
		}, nil
	}

	result, err := c.scanner.Scan(ctx, chain, pending.Address)
	if err != nil {
		c.logger.Error("[CheckPayment][Scan]", map[string]string{
			"error":   err.Error(),
			"chain":   chain.String(),
			"address": pending.Address,
		})
		return nil, err
	}

	if !result.IsFound() {
		c.recordCheck(chain, model.ScanOutcomeNotFound)
		return &model.PaymentCheck{
			Outcome: model.ScanOutcomeNotFound,
			Deposit: pending,
		}, nil
	}

	payment := result.Payment
	fresh := true
	err = c.store.Deposit.Confirm(db, pending.ID, payment.TxHash, payment.Amount, payment.Coin)
	switch {
	case errors.Is(err, consts.ErrAlreadyConfirmed):
		fresh = false
	case err != nil:
		c.logger.Error("[CheckPayment][Confirm]", map[string]string{
			"error":      err.Error(),
			"deposit_id": strconv.FormatInt(pending.ID, 10),
			"tx_hash":    payment.TxHash,
		})
		return nil, err
	}

	confirmed, err := c.store.Deposit.GetByID(db, pending.ID)
	if err != nil {
		c.logger.Error("[CheckPayment][GetByID]", map[string]string{
			"error":      err.Error(),
			"deposit_id": strconv.FormatInt(pending.ID, 10),
		})
		return nil, err
	}
	if confirmed == nil {
		return nil, errors.Wrapf(gorm.ErrRecordNotFound, "deposit %d", pending.ID)
	}

	c.recordCheck(chain, model.ScanOutcomeFound)
	if fresh {
		c.logger.Info("[CheckPayment] payment confirmed", map[string]string{
			"deposit_id": strconv.FormatInt(confirmed.ID, 10),
			"user_id":    strconv.FormatInt(userID, 10),
			"chain":      chain.String(),
			"coin":       payment.Coin,
			"tx_hash":    payment.TxHash,
			"amount":     payment.Amount.String(),
			"raw_amount": rawValue(payment.RawAmount),
		})
		if c.metrics != nil {
			c.metrics.RecordConfirmed(chain.String(), payment.Coin)
		}
		c.notifyPaid(ctx, confirmed, payment)
	}

	return &model.PaymentCheck{
		Outcome:          model.ScanOutcomeFound,
		Deposit:          confirmed,
		AlreadyConfirmed: !fresh,
	}, nil
}

func (c *Controller) HasAccess(ctx context.Context, userID int64) (bool, error) {
	paid, err := c.store.Deposit.HasPaid(c.db.WithContext(ctx), userID)
	if err != nil {
		c.logger.Error("[HasAccess][HasPaid]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(userID, 10),
		})
		return false, err
	}
	return paid, nil
}

func (c *Controller) Close() {
	c.notifications.Wait()
}

func (c *Controller) recordCheck(chain chains.Chain, outcome model.ScanOutcome) {
	if c.metrics != nil {
		c.metrics.RecordCheck(chain.String(), string(outcome))
	}
}

// notifyPaid posts the paid event in the background. The caller's context
// may end with the HTTP request, so delivery runs detached from it.
func (c *Controller) notifyPaid(ctx context.Context, deposit *model.Deposit, payment *model.DetectedPayment) {
	url := c.config.Notification.PaidWebhookURL
	if c.notifier == nil || url == "" {
		return
	}

	payload := webhook.PaymentConfirmed{
		Event:          webhook.EventPaymentConfirmed,
		DepositID:      deposit.ID,
		UserID:         deposit.UserID,
		Chain:          deposit.Chain.String(),
		Address:        deposit.Address,
		AmountReceived: deposit.AmountReceived.Decimal,
		RawAmount:      payment.RawAmount,
	}
	if deposit.CoinType != nil {
		payload.Coin = *deposit.CoinType
	}
	if deposit.TxHash != nil {
		payload.TxHash = *deposit.TxHash
	}
	if deposit.PaidAt != nil {
		payload.PaidAt = *deposit.PaidAt
	}

	c.notifications.Add(1)
	go func() {
		defer c.notifications.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		deliveryID, err := c.notifier.NotifyPaymentConfirmed(notifyCtx, url, payload)
		if err != nil {
			c.logger.Error("[CheckPayment][NotifyPaymentConfirmed]", map[string]string{
				"error":       err.Error(),
				"deposit_id":  strconv.FormatInt(deposit.ID, 10),
				"delivery_id": deliveryID,
			})
		}
	}()
}

func rawValue(raw *model.Web3BigInt) string {
	if raw == nil {
		return ""
	}
	return raw.Value
}
