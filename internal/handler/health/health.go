package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/scanner"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

// HealthHandler implements IHealthHandler interface
type HealthHandler struct {
	config           *config.AppConfig
	logger           *logger.Logger
	db               *gorm.DB
	registry         chainregistry.IRegistry
	scanner          scanner.IScanner
	breakers         []monitoring.BreakerReporter
	jobStatusManager *monitoring.JobStatusManager
}

// New creates a new health handler instance
func New(config *config.AppConfig, logger *logger.Logger, db *gorm.DB, registry chainregistry.IRegistry, scanner scanner.IScanner, breakers []monitoring.BreakerReporter, jobStatusManager *monitoring.JobStatusManager) IHealthHandler {
	return &HealthHandler{
		config:           config,
		logger:           logger,
		db:               db,
		registry:         registry,
		scanner:          scanner,
		breakers:         breakers,
		jobStatusManager: jobStatusManager,
	}
}

// Basic handles the basic health check endpoint (/healthz)
// @Summary Basic health check
// @Description Returns basic system availability status
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} BasicHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Basic(c *gin.Context) {
	response := BasicHealthResponse{
		Message: "ok",
	}
	c.JSON(http.StatusOK, response)
}

// Database handles the database health check endpoint
// @Summary Database health check
// @Description Validates database connectivity and performance
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/db [get]
func (h *HealthHandler) Database(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	// Get context safely
	ctx := context.Background()
	if c.Request != nil {
		ctx = c.Request.Context()
	}

	// Check database health
	dbCheck := h.checkDatabase(ctx)
	response.Checks["database"] = dbCheck
	response.DurationMs = time.Since(start).Milliseconds()

	// Determine overall status
	if dbCheck.Status == "healthy" {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// External handles the external API dependencies health check endpoint
// @Summary External dependencies health check
// @Description Reads the block height of every registered chain and reports circuit breaker states
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/external [get]
func (h *HealthHandler) External(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	// Get context safely and create overall context with timeout
	baseCtx := context.Background()
	if c.Request != nil {
		baseCtx = c.Request.Context()
	}
	ctx, cancel := context.WithTimeout(baseCtx, 10*time.Second)
	defer cancel()

	if h.registry == nil || h.scanner == nil {
		response.Status = "unhealthy"
		response.Checks["chain_rpc"] = HealthCheck{
			Status: "unhealthy",
			Error:  "chain rpc not available",
		}
		response.DurationMs = time.Since(start).Milliseconds()
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	// Check every registered chain in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, cfg := range h.registry.Chains() {
		wg.Add(1)
		go func(chain chains.Chain) {
			defer wg.Done()
			chainCheck := h.checkChain(ctx, chain)
			mu.Lock()
			response.Checks[strings.ToLower(chain.String())+"_rpc"] = chainCheck
			mu.Unlock()
		}(cfg.ID)
	}

	wg.Wait()
	for name, check := range h.checkBreakers() {
		response.Checks[name] = check
	}
	response.DurationMs = time.Since(start).Milliseconds()

	// Determine overall status
	allHealthy := true
	for _, check := range response.Checks {
		if check.Status != "healthy" {
			allHealthy = false
			break
		}
	}

	if allHealthy {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// checkDatabase performs database health validation
func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Metadata: make(map[string]interface{}),
	}

	// Handle nil database
	if h.db == nil {
		check.Status = "unhealthy"
		check.Error = "database connection not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	// Get underlying SQL DB
	sqlDB, err := h.db.DB()
	if err != nil {
		check.Status = "unhealthy"
		check.Error = fmt.Sprintf("failed to get underlying database: %v", err)
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	// Create context with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Ping database
	if err := sqlDB.PingContext(pingCtx); err != nil {
		check.Status = "unhealthy"
		if pingCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = err.Error()
		}
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	// Get connection pool stats
	stats := sqlDB.Stats()

	check.Status = "healthy"
	check.Latency = time.Since(start).Milliseconds()
	check.Metadata["driver"] = h.db.Dialector.Name()
	check.Metadata["connection_pool"] = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"max_open":         stats.MaxOpenConnections,
	}

	return check
}

// checkBreakers reports every breaker, keyed "<api>_breaker". An open
// breaker counts as unhealthy.
func (h *HealthHandler) checkBreakers() map[string]HealthCheck {
	checks := make(map[string]HealthCheck)
	for _, reporter := range h.breakers {
		for name, state := range reporter.BreakerStates() {
			check := HealthCheck{
				Status:   "healthy",
				Metadata: map[string]interface{}{"state": state.String()},
			}
			if state == gobreaker.StateOpen {
				check.Status = "unhealthy"
				check.Error = "circuit breaker open"
			}
			checks[name+"_breaker"] = check
		}
	}
	return checks
}

// checkChain probes a chain's node with a block height read
func (h *HealthHandler) checkChain(ctx context.Context, chain chains.Chain) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Metadata: make(map[string]interface{}),
	}

	// Create context with timeout for individual check
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	height, err := h.scanner.BlockHeight(checkCtx, chain)
	switch {
	case err == nil:
		check.Status = "healthy"
		check.Metadata["block_height"] = height
	case checkCtx.Err() == context.DeadlineExceeded:
		check.Status = "unhealthy"
		check.Error = "timeout"
	default:
		check.Status = "unhealthy"
		check.Error = err.Error()
	}

	check.Latency = time.Since(start).Milliseconds()
	return check
}
