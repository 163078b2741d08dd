package deposit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/controller"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
	"github.com/dwarvesf/paywall-backend/internal/view"
)

type handler struct {
	controller controller.IController
	registry   chainregistry.IRegistry
	logger     *logger.Logger
	appConfig  *config.AppConfig
	recorder   *monitoring.BusinessMetricsRecorder
	validate   *validator.Validate
}

// New builds the deposit handler. recorder may be nil.
func New(controller controller.IController, registry chainregistry.IRegistry, logger *logger.Logger, appConfig *config.AppConfig, recorder *monitoring.BusinessMetricsRecorder) IHandler {
	return &handler{
		controller: controller,
		registry:   registry,
		logger:     logger,
		appConfig:  appConfig,
		recorder:   recorder,
		validate:   validator.New(),
	}
}

// RequestAddress godoc
// @Summary Get a deposit address
// @Description Returns the user's pending deposit address on a chain, issuing a new one if needed
// @id requestAddress
// @Tags Deposit
// @Accept json
// @Produce json
// @Param request body DepositRequest true "User and chain"
// @Success 200 {object} view.Response[AddressResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /deposits/address [post]
func (h *handler) RequestAddress(c *gin.Context) {
	req, ok := h.bind(c, "RequestAddress")
	if !ok {
		return
	}

	chain := chains.Parse(req.Chain)
	start := time.Now()
	deposit, err := h.controller.RequestAddress(c.Request.Context(), req.UserID, chain)
	h.record("request_address", chain, err, start)
	if err != nil {
		h.logger.Error("[RequestAddress][RequestAddress]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(req.UserID, 10),
			"chain":   chain.String(),
		})
		h.writeError(c, err, "failed to issue deposit address")
		return
	}

	resp := AddressResponse{
		Address:      deposit.Address,
		Chain:        deposit.Chain.String(),
		Status:       string(deposit.Status),
		AddressIndex: deposit.AddressIndex,
		MinAmount:    h.appConfig.Payment.MinAmount,
		Tokens:       h.tokens(chain),
		CreatedAt:    deposit.CreatedAt,
	}
	c.JSON(http.StatusOK, view.CreateResponse(resp, nil, nil, ""))
}

// CheckPayment godoc
// @Summary Check for a payment
// @Description Scans the pending deposit address and confirms the deposit once a qualifying transfer is found
// @id checkPayment
// @Tags Deposit
// @Accept json
// @Produce json
// @Param request body DepositRequest true "User and chain"
// @Success 200 {object} view.Response[CheckResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /deposits/check [post]
func (h *handler) CheckPayment(c *gin.Context) {
	req, ok := h.bind(c, "CheckPayment")
	if !ok {
		return
	}

	chain := chains.Parse(req.Chain)
	start := time.Now()
	check, err := h.controller.CheckPayment(c.Request.Context(), req.UserID, chain)
	h.record("check_payment", chain, err, start)
	if err != nil {
		h.logger.Error("[CheckPayment][CheckPayment]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(req.UserID, 10),
			"chain":   chain.String(),
		})
		h.writeError(c, err, "failed to check payment")
		return
	}

	resp := CheckResponse{
		Status:           PaymentStatusPending,
		Chain:            chain.String(),
		Address:          check.Deposit.Address,
		AlreadyConfirmed: check.AlreadyConfirmed,
	}
	if check.Outcome != model.ScanOutcomeFound {
		c.JSON(http.StatusOK, view.CreateResponse(resp, nil, nil, consts.PaymentNotDetectedMessage))
		return
	}

	d := check.Deposit
	resp.Status = PaymentStatusPaid
	resp.InviteLink = h.appConfig.AccessInviteLink
	resp.PaidAt = d.PaidAt
	if d.CoinType != nil {
		resp.Coin = *d.CoinType
	}
	if d.TxHash != nil {
		resp.TxHash = *d.TxHash
	}
	if d.AmountReceived.Valid {
		amount := d.AmountReceived.Decimal
		resp.Amount = &amount
	}
	c.JSON(http.StatusOK, view.CreateResponse(resp, nil, nil, "payment confirmed"))
}

// HasAccess godoc
// @Summary Check access
// @Description Reports whether the user has a paid deposit on any chain
// @id hasAccess
// @Tags Deposit
// @Produce json
// @Param user_id path int true "User ID"
// @Success 200 {object} view.Response[AccessResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /users/{user_id}/access [get]
func (h *handler) HasAccess(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		if err == nil {
			err = errors.New("user_id must be positive")
		}
		h.logger.Error("[HasAccess][ParseInt]", map[string]string{
			"error":   err.Error(),
			"user_id": c.Param("user_id"),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "invalid user id"))
		return
	}

	paid, err := h.controller.HasAccess(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("[HasAccess][HasAccess]", map[string]string{
			"error":   err.Error(),
			"user_id": strconv.FormatInt(userID, 10),
		})
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, "failed to check access"))
		return
	}

	resp := AccessResponse{HasAccess: paid}
	if paid {
		resp.InviteLink = h.appConfig.AccessInviteLink
	}
	c.JSON(http.StatusOK, view.CreateResponse(resp, nil, nil, ""))
}

// ListChains godoc
// @Summary List supported chains
// @Description Lists the registered chains and the tokens accepted on each
// @id listChains
// @Tags Deposit
// @Produce json
// @Success 200 {object} view.Response[[]ChainResponse]
// @Router /chains [get]
func (h *handler) ListChains(c *gin.Context) {
	resp := []ChainResponse{}
	for _, cfg := range h.registry.Chains() {
		resp = append(resp, ChainResponse{
			ID:     cfg.ID.String(),
			Tokens: h.tokens(cfg.ID),
		})
	}
	c.JSON(http.StatusOK, view.CreateResponse(resp, nil, nil, ""))
}

func (h *handler) bind(c *gin.Context, method string) (DepositRequest, bool) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("["+method+"][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return req, false
	}

	if err := h.validate.Struct(req); err != nil {
		h.logger.Error("["+method+"][Validator]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, req, "invalid request"))
		return req, false
	}
	return req, true
}

func (h *handler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, consts.ErrUnknownChain):
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, err, nil, "unsupported chain"))
	case errors.Is(err, consts.ErrNoPendingDeposit):
		c.JSON(http.StatusNotFound, view.CreateResponse[any](nil, err, nil, "no pending deposit, request an address first"))
	default:
		c.JSON(http.StatusInternalServerError, view.CreateResponse[any](nil, err, nil, message))
	}
}

func (h *handler) record(operation string, chain chains.Chain, err error, start time.Time) {
	if h.recorder == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, consts.ErrUnknownChain), errors.Is(err, consts.ErrNoPendingDeposit):
		status = "client_error"
		// unknown chains would otherwise add one label per caller typo
		if errors.Is(err, consts.ErrUnknownChain) {
			chain = "unknown"
		}
	case err != nil:
		status = "error"
	}
	h.recorder.RecordDepositOperation(operation, chain.String(), status, time.Since(start).Seconds())
}

func (h *handler) tokens(chain chains.Chain) []string {
	cfg, err := h.registry.Get(chain)
	if err != nil {
		return []string{}
	}
	symbols := make([]string, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}
