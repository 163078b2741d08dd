package deposit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/model"
	"github.com/dwarvesf/paywall-backend/internal/monitoring"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) RequestAddress(ctx context.Context, userID int64, chain chains.Chain) (*model.Deposit, error) {
	args := m.Called(ctx, userID, chain)
	d, _ := args.Get(0).(*model.Deposit)
	return d, args.Error(1)
}

func (m *mockController) CheckPayment(ctx context.Context, userID int64, chain chains.Chain) (*model.PaymentCheck, error) {
	args := m.Called(ctx, userID, chain)
	check, _ := args.Get(0).(*model.PaymentCheck)
	return check, args.Error(1)
}

func (m *mockController) HasAccess(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockController) SweepPending(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockController) Close() {}

const inviteLink = "https://t.me/+invite"

func setupRouter(t *testing.T, ctrl *mockController) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := chainregistry.New([]chainregistry.ChainSpec{{
		ID:         "POLYGON",
		RPCURL:     "http://polygon.invalid",
		ScanBlocks: 40000,
		Tokens: []chainregistry.TokenSpec{
			{Symbol: consts.TokenUSDT, Contract: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"},
			{Symbol: consts.TokenUSDC, Contract: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
		},
	}})
	require.NoError(t, err)

	appConfig := &config.AppConfig{
		Payment:          config.PaymentConfig{MinAmount: decimal.RequireFromString("14.5")},
		AccessInviteLink: inviteLink,
	}
	h := New(ctrl, registry, logger.New("test"), appConfig, monitoring.NewBusinessMetricsRecorder(monitoring.NewHTTPMetrics()))

	r := gin.New()
	r.POST("/deposits/address", h.RequestAddress)
	r.POST("/deposits/check", h.CheckPayment)
	r.GET("/users/:user_id/access", h.HasAccess)
	r.GET("/chains", h.ListChains)
	return r
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestHandler_RequestAddress(t *testing.T) {
	t.Run("issues address", func(t *testing.T) {
		ctrl := &mockController{}
		ctrl.On("RequestAddress", mock.Anything, int64(42), chains.Polygon).Return(&model.Deposit{
			ID:           1,
			UserID:       42,
			Chain:        chains.Polygon,
			Address:      "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
			AddressIndex: 3,
			Status:       model.DepositStatusPending,
			CreatedAt:    time.Now(),
		}, nil)
		r := setupRouter(t, ctrl)

		code, env := do(t, r, http.MethodPost, "/deposits/address", `{"user_id":42,"chain":"polygon"}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Nil(t, env.Error)

		var resp AddressResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, "0x90F79bf6EB2c4f870365E785982E1f101E93b906", resp.Address)
		assert.Equal(t, int64(3), resp.AddressIndex)
		assert.Equal(t, "POLYGON", resp.Chain)
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, []string{"USDT", "USDC"}, resp.Tokens)
		assert.True(t, resp.MinAmount.Equal(decimal.RequireFromString("14.5")))
	})

	tests := []struct {
		name     string
		body     string
		ctrlErr  error
		wantCode int
	}{
		{name: "malformed json", body: `{"user_id":`, wantCode: http.StatusBadRequest},
		{name: "missing chain", body: `{"user_id":42}`, wantCode: http.StatusBadRequest},
		{name: "negative user", body: `{"user_id":-1,"chain":"POLYGON"}`, wantCode: http.StatusBadRequest},
		{name: "unknown chain", body: `{"user_id":42,"chain":"SOLANA"}`, ctrlErr: errors.Wrap(consts.ErrUnknownChain, "chain SOLANA"), wantCode: http.StatusBadRequest},
		{name: "store failure", body: `{"user_id":42,"chain":"POLYGON"}`, ctrlErr: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{}
			ctrl.On("RequestAddress", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.ctrlErr)
			r := setupRouter(t, ctrl)

			code, env := do(t, r, http.MethodPost, "/deposits/address", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.NotNil(t, env.Error)
		})
	}
}

func TestHandler_CheckPayment(t *testing.T) {
	pending := &model.Deposit{
		ID:      1,
		UserID:  42,
		Chain:   chains.Polygon,
		Address: "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
		Status:  model.DepositStatusPending,
	}

	t.Run("not detected yet", func(t *testing.T) {
		ctrl := &mockController{}
		ctrl.On("CheckPayment", mock.Anything, int64(42), chains.Polygon).Return(&model.PaymentCheck{
			Outcome: model.ScanOutcomeNotFound,
			Deposit: pending,
		}, nil)
		r := setupRouter(t, ctrl)

		code, env := do(t, r, http.MethodPost, "/deposits/check", `{"user_id":42,"chain":"POLYGON"}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, consts.PaymentNotDetectedMessage, env.Message)

		var resp CheckResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, PaymentStatusPending, resp.Status)
		assert.Empty(t, resp.InviteLink)
	})

	t.Run("confirmed", func(t *testing.T) {
		coin, hash := "USDC", "0xabc1"
		paidAt := time.Now().UTC()
		paid := *pending
		paid.Status = model.DepositStatusPaid
		paid.CoinType = &coin
		paid.TxHash = &hash
		paid.PaidAt = &paidAt
		paid.AmountReceived = decimal.NewNullDecimal(decimal.NewFromInt(20))

		ctrl := &mockController{}
		ctrl.On("CheckPayment", mock.Anything, int64(42), chains.Polygon).Return(&model.PaymentCheck{
			Outcome: model.ScanOutcomeFound,
			Deposit: &paid,
		}, nil)
		r := setupRouter(t, ctrl)

		code, env := do(t, r, http.MethodPost, "/deposits/check", `{"user_id":42,"chain":"POLYGON"}`)
		assert.Equal(t, http.StatusOK, code)

		var resp CheckResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, PaymentStatusPaid, resp.Status)
		assert.Equal(t, "USDC", resp.Coin)
		assert.Equal(t, "0xabc1", resp.TxHash)
		require.NotNil(t, resp.Amount)
		assert.True(t, resp.Amount.Equal(decimal.NewFromInt(20)))
		assert.Equal(t, inviteLink, resp.InviteLink)
	})

	tests := []struct {
		name     string
		ctrlErr  error
		wantCode int
	}{
		{name: "no pending deposit", ctrlErr: errors.Wrap(consts.ErrNoPendingDeposit, "user 42"), wantCode: http.StatusNotFound},
		{name: "unknown chain", ctrlErr: consts.ErrUnknownChain, wantCode: http.StatusBadRequest},
		{name: "internal", ctrlErr: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{}
			ctrl.On("CheckPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.ctrlErr)
			r := setupRouter(t, ctrl)

			code, _ := do(t, r, http.MethodPost, "/deposits/check", `{"user_id":42,"chain":"POLYGON"}`)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestHandler_HasAccess(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		paid       bool
		ctrlErr    error
		wantCode   int
		wantAccess bool
		wantLink   string
	}{
		{name: "paid", path: "/users/42/access", paid: true, wantCode: http.StatusOK, wantAccess: true, wantLink: inviteLink},
		{name: "not paid", path: "/users/42/access", wantCode: http.StatusOK},
		{name: "bad id", path: "/users/abc/access", wantCode: http.StatusBadRequest},
		{name: "zero id", path: "/users/0/access", wantCode: http.StatusBadRequest},
		{name: "store failure", path: "/users/42/access", ctrlErr: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{}
			ctrl.On("HasAccess", mock.Anything, int64(42)).Return(tt.paid, tt.ctrlErr)
			r := setupRouter(t, ctrl)

			code, env := do(t, r, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantCode, code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp AccessResponse
			require.NoError(t, json.Unmarshal(env.Data, &resp))
			assert.Equal(t, tt.wantAccess, resp.HasAccess)
			assert.Equal(t, tt.wantLink, resp.InviteLink)
		})
	}
}

func TestHandler_ListChains(t *testing.T) {
	r := setupRouter(t, &mockController{})

	code, env := do(t, r, http.MethodGet, "/chains", "")
	assert.Equal(t, http.StatusOK, code)

	var resp []ChainResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "POLYGON", resp[0].ID)
	assert.Equal(t, []string{"USDT", "USDC"}, resp[0].Tokens)
}
