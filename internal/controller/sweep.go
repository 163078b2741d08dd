package controller

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/utils/distlock"
)

// SweepPending re-runs CheckPayment for the oldest pending deposits. One
// failing deposit is logged and skipped. When a Locker is set, a run that
// finds the lock held is skipped without error.
func (c *Controller) SweepPending(ctx context.Context) error {
	if c.locker == nil {
		return c.sweep(ctx)
	}

	err := c.locker.Do(ctx, c.sweep)
	if errors.Is(err, distlock.ErrLocked) {
		c.logger.Info("[SweepPending] another replica holds the sweep lock, skipping")
		return nil
	}
	return err
}

func (c *Controller) sweep(ctx context.Context) error {
	db := c.db.WithContext(ctx)

	if c.metrics != nil {
		counts, err := c.store.Deposit.CountPendingByChain(db)
		if err != nil {
			c.logger.Error("[SweepPending][CountPendingByChain]", map[string]string{
				"error": err.Error(),
			})
			return err
		}
		for _, cfg := range c.registry.Chains() {
			c.metrics.SetPendingDeposits(cfg.ID.String(), counts[cfg.ID])
		}
	}

	deposits, err := c.store.Deposit.ListPending(db, c.config.Sweep.BatchSize)
	if err != nil {
		c.logger.Error("[SweepPending][ListPending]", map[string]string{
			"error": err.Error(),
		})
		return err
	}

	var (
		g         errgroup.Group
		confirmed atomic.Int64
		failed    atomic.Int64
	)
	g.SetLimit(max(c.config.Sweep.Concurrency, 1))

	for _, d := range deposits {
		if !c.registry.Has(d.Chain) {
			// chain dropped from the registry since the address was issued
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			check, err := c.CheckPayment(ctx, d.UserID, d.Chain)
			if err != nil {
				failed.Add(1)
				c.logger.Error("[SweepPending][CheckPayment]", map[string]string{
					"error":      err.Error(),
					"deposit_id": strconv.FormatInt(d.ID, 10),
				})
				return nil
			}
			if check.Outcome == model.ScanOutcomeFound && !check.AlreadyConfirmed {
				confirmed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info("[SweepPending] sweep finished", map[string]string{
		"checked":   strconv.Itoa(len(deposits)),
		"confirmed": strconv.FormatInt(confirmed.Load(), 10),
		"failed":    strconv.FormatInt(failed.Load(), 10),
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	if c.notifier != nil {
		c.notifier.CallUptimeWebhook(ctx, c.config.Notification.SweepUptimeWebhookURL)
	}
	return nil
}
