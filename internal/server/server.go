package server

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/controller"
	"github.com/dwarvesf/paywall-backend/internal/evmrpc"
	"github.com/dwarvesf/paywall-backend/internal/handler"
	"github.com/dwarvesf/paywall-backend/internal/hdwallet"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/scanner"
	"github.com/dwarvesf/paywall-backend/internal/store"
	pgstore "github.com/dwarvesf/paywall-backend/internal/store/postgres"
	"github.com/dwarvesf/paywall-backend/internal/transport/http"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/distlock"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
	"github.com/dwarvesf/paywall-backend/internal/utils/vault"
	"github.com/dwarvesf/paywall-backend/internal/utils/webhook"
)

const (
	sweepTimeout        = 5 * time.Minute
	sweepLockKey        = "paywall:lock:sweep"
	stalledJobThreshold = 2 * sweepTimeout
	shutdownTimeout     = 15 * time.Second
)

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)
	defer func() { _ = logger.Sync() }()

	if err := appConfig.Validate(); err != nil {
		logger.Fatal("[Init][Validate]", map[string]string{
			"error": err.Error(),
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mnemonic, err := loadMnemonic(ctx, appConfig)
	if err != nil {
		logger.Fatal("[Init][loadMnemonic]", map[string]string{
			"error": err.Error(),
		})
	}
	wallet, err := hdwallet.New(mnemonic)
	if err != nil {
		logger.Fatal("[Init][hdwallet.New]", map[string]string{
			"error": err.Error(),
		})
	}

	registry, err := chainregistry.Load(appConfig)
	if err != nil {
		logger.Fatal("[Init][chainregistry.Load]", map[string]string{
			"error": err.Error(),
		})
	}
	for _, cfg := range registry.Chains() {
		logger.Info("chain registered", map[string]string{
			"chain":       cfg.String(),
			"scan_blocks": formatUint(cfg.ScanBlocks),
		})
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	apiMetrics := monitoring.NewExternalAPIMetrics()
	apiMetrics.MustRegister(metricsRegistry)
	httpMetrics := monitoring.NewHTTPMetrics()
	httpMetrics.MustRegister(metricsRegistry)
	paymentMetrics := monitoring.NewPaymentMetrics()
	paymentMetrics.MustRegister(metricsRegistry)
	jobMetrics := monitoring.NewBackgroundJobMetrics()
	jobMetrics.MustRegister(metricsRegistry)
	recorder := monitoring.NewBusinessMetricsRecorder(httpMetrics)

	breakerConfig, err := monitoring.BreakerConfigFor("evm_rpc")
	if err != nil {
		logger.Fatal("[Init][BreakerConfigFor]", map[string]string{
			"error": err.Error(),
		})
	}
	evmBreakers := monitoring.NewEvmBreakers(breakerConfig, apiMetrics, logger)
	dial := evmBreakers.WrapDialer(evmrpc.NewDialer(appConfig, logger))
	paymentScanner := scanner.New(registry, dial, appConfig, logger, recorder)
	defer paymentScanner.Close()

	db := pgstore.New(appConfig, logger)
	s := store.New()
	if err := s.Deposit.EnsureSequence(db.WithContext(ctx)); err != nil {
		logger.Fatal("[Init][EnsureSequence]", map[string]string{
			"error": err.Error(),
		})
	}

	var locker controller.Locker
	if appConfig.Redis.Addr != "" {
		redisClient, err := distlock.NewClient(ctx, appConfig.Redis)
		if err != nil {
			logger.Fatal("[Init][distlock.NewClient]", map[string]string{
				"error": err.Error(),
			})
		}
		defer redisClient.Close()
		// outlives the job timeout so a slow run keeps the key
		locker = distlock.New(redisClient, sweepLockKey, sweepTimeout+time.Minute)
	}

	webhookBreakerConfig, err := monitoring.BreakerConfigFor("paid_webhook")
	if err != nil {
		logger.Fatal("[Init][BreakerConfigFor]", map[string]string{
			"error": err.Error(),
		})
	}
	notifier := monitoring.NewCircuitBreakerNotifier(webhook.New(logger), webhookBreakerConfig, apiMetrics, logger)

	ctrl := controller.New(db, s, registry, wallet, paymentScanner, notifier, paymentMetrics, locker, logger, appConfig)
	defer ctrl.Close()

	jobStatusManager := monitoring.NewJobStatusManager(ctx, logger, jobMetrics, stalledJobThreshold)
	scheduler := cron.New()
	if appConfig.Sweep.Schedule != "" {
		job := monitoring.NewInstrumentedJob(consts.SweepJobName, ctrl.SweepPending, jobStatusManager, logger, sweepTimeout)
		if _, err := scheduler.AddJob(appConfig.Sweep.Schedule, job); err != nil {
			logger.Fatal("[Init][AddJob]", map[string]string{
				"error":    err.Error(),
				"schedule": appConfig.Sweep.Schedule,
			})
		}
		scheduler.Start()
		logger.Info("payment sweep scheduled", map[string]string{
			"schedule": appConfig.Sweep.Schedule,
		})
	}

	h := handler.New(appConfig, logger, ctrl, registry, paymentScanner, db, metricsRegistry, recorder,
		[]monitoring.BreakerReporter{evmBreakers, notifier}, jobStatusManager)
	router := http.NewHttpServer(appConfig, logger, h, httpMetrics)

	srv := &nethttp.Server{
		Addr:              ":" + appConfig.ApiServer.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", map[string]string{
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("[Init][ListenAndServe]", map[string]string{
				"error": err.Error(),
			})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Init][Shutdown]", map[string]string{
			"error": err.Error(),
		})
	}

	// wait for a running sweep to finish
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("sweep still running at shutdown")
	}
}

// loadMnemonic prefers HD_WALLET_MNEMONIC and falls back to vault.
func loadMnemonic(ctx context.Context, appConfig *config.AppConfig) (string, error) {
	if appConfig.Wallet.Mnemonic != "" {
		return appConfig.Wallet.Mnemonic, nil
	}

	vc, err := vault.New(ctx, appConfig.Vault.Address, appConfig.Vault.KVSecretPath, appConfig.Vault.Role, appConfig.Vault.TokenPath)
	if err != nil {
		return "", err
	}
	return vc.Mnemonic(ctx, appConfig.Vault.MnemonicKey, appConfig.Vault.TransitKey)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
