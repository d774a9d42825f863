package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/chain"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/orchestrator"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/retry"
)

type stubSettlement struct{}

func (stubSettlement) GetQuote(context.Context, common.QuoteRequestParams) (*common.Quote, error) {
	return &common.Quote{
		QuoteID:        uuid.New(),
		DstTokenAmount: "990",
		Presets: map[common.PresetEnum]common.PresetData{
			common.PresetFast: {SecretsCount: 1},
		},
		RecommendedPreset: common.PresetFast,
	}, nil
}

func (stubSettlement) PlaceOrder(context.Context, common.PlaceOrderRequest) (*common.PlaceOrderResponse, error) {
	return &common.PlaceOrderResponse{OrderID: "ord-api"}, nil
}

func (stubSettlement) GetOrderStatus(context.Context, string) (*common.OrderStatusResponse, error) {
	return &common.OrderStatusResponse{Status: common.SettlementPending}, nil
}

func (stubSettlement) GetReadyToAcceptSecretFills(context.Context, string) (*common.ReadyToAcceptSecretFills, error) {
	return &common.ReadyToAcceptSecretFills{}, nil
}

func (stubSettlement) SubmitSecret(context.Context, common.SecretSubmission) error { return nil }

type stubChainAdapter struct {
	chain.Adapter
	id common.ChainID
}

func (a *stubChainAdapter) ChainID() common.ChainID { return a.id }
func (a *stubChainAdapter) IsConnected() bool       { return true }
func (a *stubChainAdapter) Disconnect() error       { return nil }

func (a *stubChainAdapter) CancelOrder(context.Context, string) (*chain.TxResult, error) {
	return &chain.TxResult{Hash: "0xcancel", Status: chain.TxConfirmed}, nil
}

func (a *stubChainAdapter) ApproveAsset(context.Context, common.Asset, string, string) (*chain.TxResult, error) {
	return &chain.TxResult{Hash: "0xapprove", Status: chain.TxPending}, nil
}

func newTestServer(t *testing.T) (*APIServer, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zerolog.Nop()
	registry := chain.NewRegistry(logger)
	for _, id := range []common.ChainID{common.Ethereum, common.Sui} {
		id := id
		registry.RegisterAdapter(id, func() (chain.Adapter, error) {
			return &stubChainAdapter{id: id}, nil
		})
	}

	o := orchestrator.New(registry, stubSettlement{}, common.NewBroadcaster(), orchestrator.Options{
		RetryPolicy:  retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond},
		PollInterval: time.Hour,
	}, logger)
	t.Cleanup(o.Cleanup)

	s := &APIServer{port: 0, orchestrator: o, logger: logger}
	return s, s.RegisterRoutes()
}

func createOrderBody() []byte {
	body, _ := json.Marshal(CreateOrderRequest{
		SrcChain: common.Ethereum,
		DstChain: common.Sui,
		SrcAsset: common.Asset{ChainID: common.Ethereum, Address: "0xsrc", Standard: common.StandardERC20},
		DstAsset: common.Asset{ChainID: common.Sui, Address: "0x2::usdc::USDC", Standard: common.StandardSuiCoin},
		Amount:   "1000",
		Maker:    "0xmaker",
		Deadline: time.Now().Add(time.Hour).Unix(),
	})
	return body
}

func TestHealthRoute(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ethereum")
	assert.Contains(t, rec.Body.String(), "sui")
}

func TestQuoteRouteValidatesParams(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quoter/v1.0/quote/receive", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/quoter/v1.0/quote/receive?srcChain=ethereum&dstChain=sui&amount=1000&walletAddress=0xmaker", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderLifecycleRoutes(t *testing.T) {
	_, handler := newTestServer(t)

	// create
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/v1.0/order", bytes.NewReader(createOrderBody()))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created common.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ord-api", created.OrderID)
	assert.Equal(t, common.StatusPending, created.Status)
	assert.NotContains(t, rec.Body.String(), `"secrets"`, "secrets must never leave the process")

	// get
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/v1.0/order/ord-api", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// list
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/v1.0/order", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ord-api")

	// cancel
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/orders/v1.0/order/ord-api", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// cancel again rejects terminal order
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/orders/v1.0/order/ord-api", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// prune
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/v1.0/prune", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pruned":1`)
}

func TestGetOrderNotFound(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/v1.0/order/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderRejectsBadPayload(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders/v1.0/order", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveTokenRoute(t *testing.T) {
	_, handler := newTestServer(t)

	body, _ := json.Marshal(ApproveTokenRequest{
		Asset:   common.Asset{ChainID: common.Ethereum, Address: "0xsrc", Standard: common.StandardERC20},
		Spender: "0xspender",
		Amount:  "1000",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tokens/v1.0/approve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xapprove")
}

func TestCORSPreflight(t *testing.T) {
	_, handler := newTestServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/orders/v1.0/order", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
