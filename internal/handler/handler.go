package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/controller"
	"github.com/dwarvesf/paywall-backend/internal/handler/deposit"
	"github.com/dwarvesf/paywall-backend/internal/handler/health"
	"github.com/dwarvesf/paywall-backend/internal/handler/metrics"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/scanner"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

type Handler struct {
	DepositHandler deposit.IHandler
	HealthHandler  health.IHealthHandler
	MetricsHandler *metrics.MetricsHandler
}

func New(appConfig *config.AppConfig, logger *logger.Logger,
	controller controller.IController,
	registry chainregistry.IRegistry,
	scanner scanner.IScanner,
	db *gorm.DB,
	metricsRegistry *prometheus.Registry,
	recorder *monitoring.BusinessMetricsRecorder,
	breakers []monitoring.BreakerReporter,
	jobStatusManager *monitoring.JobStatusManager) *Handler {
	return &Handler{
		DepositHandler: deposit.New(controller, registry, logger, appConfig, recorder),
		HealthHandler:  health.New(appConfig, logger, db, registry, scanner, breakers, jobStatusManager),
		MetricsHandler: metrics.NewMetricsHandler(metricsRegistry),
	}
}
