package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/paywall-backend/internal/handler"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, appConfig *config.AppConfig, logger *logger.Logger) {
	v1 := r.Group("/api/v1")

	deposits := v1.Group("/deposits")
	{
		deposits.POST("/address", h.DepositHandler.RequestAddress)
		deposits.POST("/check", h.DepositHandler.CheckPayment)
	}

	v1.GET("/users/:user_id/access", h.DepositHandler.HasAccess)
	v1.GET("/chains", h.DepositHandler.ListChains)

	health := v1.Group("/health")
	{
		health.GET("/db", h.HealthHandler.Database)
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
	}

	r.GET("/healthz", h.HealthHandler.Basic)
	r.GET("/metrics", h.MetricsHandler.Handler())
}
