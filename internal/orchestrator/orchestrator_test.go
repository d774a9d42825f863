package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/chain"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/retry"
)

// fakeSettlement is a programmable settlement double that counts every call.
type fakeSettlement struct {
	mu sync.Mutex

	quote    *common.Quote
	quoteErr error

	placeResp *common.PlaceOrderResponse
	placeErr  error

	status         common.SettlementStatus
	statusErr      error
	statusFailures int

	ready         []common.ReadyToAcceptSecretFill
	readyErr      error
	readyFailures int

	secretErr error
	secrets   []common.SecretSubmission

	quoteCalls  int
	placeCalls  int
	statusCalls int
	readyCalls  int
	secretCalls int
}

func (f *fakeSettlement) GetQuote(context.Context, common.QuoteRequestParams) (*common.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	return f.quote, f.quoteErr
}

func (f *fakeSettlement) PlaceOrder(context.Context, common.PlaceOrderRequest) (*common.PlaceOrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	return f.placeResp, f.placeErr
}

func (f *fakeSettlement) GetOrderStatus(context.Context, string) (*common.OrderStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusFailures > 0 {
		f.statusFailures--
		return nil, errors.New("status unavailable")
	}
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &common.OrderStatusResponse{Status: f.status}, nil
}

func (f *fakeSettlement) GetReadyToAcceptSecretFills(context.Context, string) (*common.ReadyToAcceptSecretFills, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyCalls++
	if f.readyFailures > 0 {
		f.readyFailures--
		return nil, errors.New("ready fills unavailable")
	}
	if f.readyErr != nil {
		return nil, f.readyErr
	}
	return &common.ReadyToAcceptSecretFills{Fills: append([]common.ReadyToAcceptSecretFill(nil), f.ready...)}, nil
}

func (f *fakeSettlement) SubmitSecret(_ context.Context, sub common.SecretSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secretCalls++
	if f.secretErr != nil {
		return f.secretErr
	}
	f.secrets = append(f.secrets, sub)
	return nil
}

func (f *fakeSettlement) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls + f.placeCalls + f.statusCalls + f.readyCalls + f.secretCalls
}

// fakeAdapter overrides the handful of adapter calls the orchestrator makes.
type fakeAdapter struct {
	chain.Adapter
	id             common.ChainID
	cancelled      []string
	cancelFailures int
	approveErr     error
	mu             sync.Mutex
}

func (a *fakeAdapter) ChainID() common.ChainID { return a.id }
func (a *fakeAdapter) IsConnected() bool       { return true }
func (a *fakeAdapter) Disconnect() error       { return nil }

func (a *fakeAdapter) CancelOrder(_ context.Context, orderID string) (*chain.TxResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelFailures > 0 {
		a.cancelFailures--
		return nil, errors.New("rpc unavailable")
	}
	a.cancelled = append(a.cancelled, orderID)
	return &chain.TxResult{Hash: "0xcancel", Status: chain.TxConfirmed}, nil
}

func (a *fakeAdapter) ApproveAsset(context.Context, common.Asset, string, string) (*chain.TxResult, error) {
	if a.approveErr != nil {
		return nil, a.approveErr
	}
	return &chain.TxResult{Hash: "0xapprove", Status: chain.TxPending}, nil
}

func testQuote(secretsCount int) *common.Quote {
	return &common.Quote{
		QuoteID:        uuid.New(),
		SrcTokenAmount: "1000",
		DstTokenAmount: "990",
		Presets: map[common.PresetEnum]common.PresetData{
			common.PresetFast: {SecretsCount: secretsCount, AllowMultipleFills: secretsCount > 1},
		},
		RecommendedPreset: common.PresetFast,
	}
}

func validParams() CreateOrderParams {
	return CreateOrderParams{
		SrcChain: common.Ethereum,
		DstChain: common.Sui,
		SrcAsset: common.Asset{ChainID: common.Ethereum, Address: "0xsrc", Symbol: "USDC", Decimals: 6, Standard: common.StandardERC20},
		DstAsset: common.Asset{ChainID: common.Sui, Address: "0x2::usdc::USDC", Symbol: "USDC", Decimals: 6, Standard: common.StandardSuiCoin},
		Amount:   "1000",
		Maker:    "0xmaker",
		Deadline: time.Now().Add(time.Hour).Unix(),
	}
}

func newTestOrchestrator(t *testing.T, svc *fakeSettlement) (*Orchestrator, *fakeAdapter) {
	t.Helper()
	return newTestOrchestratorWithPolicy(t, svc, retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond})
}

func newTestOrchestratorWithPolicy(t *testing.T, svc *fakeSettlement, policy retry.Policy) (*Orchestrator, *fakeAdapter) {
	t.Helper()

	logger := zerolog.Nop()
	registry := chain.NewRegistry(logger)

	src := &fakeAdapter{id: common.Ethereum}
	registry.RegisterAdapter(common.Ethereum, func() (chain.Adapter, error) { return src, nil })
	registry.RegisterAdapter(common.Sui, func() (chain.Adapter, error) {
		return &fakeAdapter{id: common.Sui}, nil
	})

	opts := Options{
		RetryPolicy:  policy,
		PollInterval: time.Hour, // ticks are driven manually in tests
	}
	o := New(registry, svc, common.NewBroadcaster(), opts, logger)
	t.Cleanup(o.Cleanup)
	return o, src
}

func TestCreateOrderRejectsInvalidParamsBeforeAnySettlementCall(t *testing.T) {
	svc := &fakeSettlement{}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateOrderParams)
	}{
		{"missing maker", func(p *CreateOrderParams) { p.Maker = "" }},
		{"zero amount", func(p *CreateOrderParams) { p.Amount = "0" }},
		{"malformed amount", func(p *CreateOrderParams) { p.Amount = "12x4" }},
		{"negative amount", func(p *CreateOrderParams) { p.Amount = "-5" }},
		{"past deadline", func(p *CreateOrderParams) { p.Deadline = time.Now().Add(-time.Minute).Unix() }},
		{"same chain on both legs", func(p *CreateOrderParams) { p.DstChain = p.SrcChain }},
		{"missing chains", func(p *CreateOrderParams) { p.SrcChain, p.DstChain = "", "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := validParams()
			tc.mutate(&params)

			_, err := o.CreateOrder(ctx, params)
			assert.ErrorIs(t, err, common.ErrInvalidOrder)
		})
	}

	assert.Zero(t, svc.totalCalls(), "validation failures must not reach the settlement service")
}

func TestCreateOrderRejectsUnsupportedChainPair(t *testing.T) {
	svc := &fakeSettlement{}
	o, _ := newTestOrchestrator(t, svc)

	params := validParams()
	params.DstChain = common.Tezos // no factory registered in this fixture
	params.DstAsset.ChainID = common.Tezos

	_, err := o.CreateOrder(context.Background(), params)
	assert.ErrorIs(t, err, common.ErrUnsupportedChainPair)
	assert.Zero(t, svc.totalCalls())
}

func TestCreateOrderPlacesAndTracksOrder(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(3),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-42"},
	}
	o, _ := newTestOrchestrator(t, svc)

	order, err := o.CreateOrder(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, "ord-42", order.OrderID)
	assert.Equal(t, common.StatusPending, order.Status)
	assert.Equal(t, "990", order.MinReturn)
	assert.Len(t, order.Secrets, 3)
	assert.Len(t, order.SecretHashes, 3)
	assert.NotEmpty(t, order.HashLock)
	assert.Equal(t, 1, svc.quoteCalls)
	assert.Equal(t, 1, svc.placeCalls)

	stored, err := o.GetOrder("ord-42")
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, stored.OrderID)
	assert.Len(t, o.GetAllOrders(), 1)
}

func TestGetQuoteServesRepeatsFromCache(t *testing.T) {
	svc := &fakeSettlement{quote: testQuote(1)}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	params := common.QuoteRequestParams{
		SrcChain: "ethereum", DstChain: "sui",
		SrcTokenAddress: "0xsrc", DstTokenAddress: "0xdst",
		Amount: "1000", WalletAddress: "0xmaker",
	}

	first, err := o.GetQuote(ctx, params)
	require.NoError(t, err)
	second, err := o.GetQuote(ctx, params)
	require.NoError(t, err)

	assert.Equal(t, first.QuoteID, second.QuoteID)
	assert.Equal(t, 1, svc.quoteCalls)

	params.Amount = "2000"
	_, err = o.GetQuote(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.quoteCalls)
}

func TestTickReleasesEachSecretExactlyOnce(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(2),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-fill"},
		status:    common.SettlementPending,
	}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	svc.mu.Lock()
	svc.ready = []common.ReadyToAcceptSecretFill{
		{Idx: 0, Amount: "500", TxHash: "0xabc", Resolver: "R1"},
	}
	svc.mu.Unlock()

	for i := 0; i < 3; i++ {
		done, err := o.tick(ctx, order.OrderID)
		require.NoError(t, err)
		assert.False(t, done)
	}

	assert.Equal(t, 1, svc.secretCalls, "one ready fill must release exactly one secret")
	require.Len(t, svc.secrets, 1)
	assert.Equal(t, order.Secrets[0], svc.secrets[0].Secret)

	got, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPartiallyFilled, got.Status)
	require.Len(t, got.Fills, 1)
	assert.Equal(t, 0, got.Fills[0].Index)
	assert.Equal(t, "500", got.Fills[0].Amount)
	assert.Equal(t, "R1", got.Fills[0].Resolver)
}

func TestTickRetriesReleaseAfterSubmitFailure(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(1),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-retry"},
		status:    common.SettlementPending,
	}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	svc.mu.Lock()
	svc.ready = []common.ReadyToAcceptSecretFill{{Idx: 0, Amount: "1000", TxHash: "0xabc", Resolver: "R1"}}
	svc.secretErr = errors.New("settlement hiccup")
	svc.mu.Unlock()

	done, err := o.tick(ctx, order.OrderID)
	require.NoError(t, err)
	assert.False(t, done)

	got, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPending, got.Status, "failed release must give the slot back")
	assert.Empty(t, got.Fills)

	svc.mu.Lock()
	svc.secretErr = nil
	svc.mu.Unlock()

	done, err = o.tick(ctx, order.OrderID)
	require.NoError(t, err)
	assert.False(t, done)

	got, err = o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPartiallyFilled, got.Status)
	require.Len(t, got.Fills, 1)
	require.Len(t, svc.secrets, 1)
	assert.Equal(t, order.Secrets[0], svc.secrets[0].Secret)
}

func TestTickIgnoresOutOfRangeFillIndexes(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(1),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-range"},
		status:    common.SettlementPending,
	}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	svc.mu.Lock()
	svc.ready = []common.ReadyToAcceptSecretFill{
		{Idx: 5, Amount: "10", TxHash: "0xbad", Resolver: "R9"},
		{Idx: -1, Amount: "10", TxHash: "0xbad", Resolver: "R9"},
	}
	svc.mu.Unlock()

	done, err := o.tick(ctx, order.OrderID)
	require.NoError(t, err)
	assert.False(t, done)

	assert.Zero(t, svc.secretCalls)
	got, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Empty(t, got.Fills)
}

func TestTickMapsTerminalSettlementStatuses(t *testing.T) {
	cases := []struct {
		settlement common.SettlementStatus
		want       common.OrderStatus
	}{
		{common.SettlementExecuted, common.StatusExecuted},
		{common.SettlementCancelled, common.StatusCancelled},
		{common.SettlementExpired, common.StatusExpired},
	}

	for _, tc := range cases {
		t.Run(string(tc.settlement), func(t *testing.T) {
			svc := &fakeSettlement{
				quote:     testQuote(1),
				placeResp: &common.PlaceOrderResponse{OrderID: "ord-" + string(tc.settlement)},
				status:    tc.settlement,
			}
			o, _ := newTestOrchestrator(t, svc)
			ctx := context.Background()

			order, err := o.CreateOrder(ctx, validParams())
			require.NoError(t, err)

			done, err := o.tick(ctx, order.OrderID)
			require.NoError(t, err)
			assert.True(t, done)

			got, err := o.GetOrder(order.OrderID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)

			// terminal orders stay put on further ticks
			done, err = o.tick(ctx, order.OrderID)
			require.NoError(t, err)
			assert.True(t, done)
			again, err := o.GetOrder(order.OrderID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, again.Status)
		})
	}
}

func TestTickRetriesStatusCheckWithinOneTick(t *testing.T) {
	svc := &fakeSettlement{
		quote:          testQuote(1),
		placeResp:      &common.PlaceOrderResponse{OrderID: "ord-blip"},
		status:         common.SettlementExecuted,
		statusFailures: 2,
	}
	o, _ := newTestOrchestratorWithPolicy(t, svc, retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond})
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	done, err := o.tick(ctx, order.OrderID)
	require.NoError(t, err, "transient status failures must be absorbed within the tick")
	assert.True(t, done)
	assert.Equal(t, 3, svc.statusCalls)

	got, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusExecuted, got.Status)
}

func TestTickRetriesReadyFillsQueryWithinOneTick(t *testing.T) {
	svc := &fakeSettlement{
		quote:         testQuote(1),
		placeResp:     &common.PlaceOrderResponse{OrderID: "ord-ready-blip"},
		status:        common.SettlementPending,
		readyFailures: 2,
		ready:         []common.ReadyToAcceptSecretFill{{Idx: 0, Amount: "1000", TxHash: "0xabc", Resolver: "R1"}},
	}
	o, _ := newTestOrchestratorWithPolicy(t, svc, retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond})
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	done, err := o.tick(ctx, order.OrderID)
	require.NoError(t, err)
	assert.False(t, done)

	assert.Equal(t, 3, svc.readyCalls)
	require.Len(t, svc.secrets, 1, "secret released once the query recovers")
	assert.Equal(t, order.Secrets[0], svc.secrets[0].Secret)
}

func TestSingleFillOrderLifecycle(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(1),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-e2e"},
		status:    common.SettlementPending,
	}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)
	require.Len(t, order.Secrets, 1)

	// resolver commits on chain, settlement reports the fill ready
	svc.mu.Lock()
	svc.ready = []common.ReadyToAcceptSecretFill{{Idx: 0, Amount: "500", TxHash: "0xabc", Resolver: "R1"}}
	svc.mu.Unlock()

	done, err := o.tick(ctx, order.OrderID)
	require.NoError(t, err)
	assert.False(t, done)

	mid, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPartiallyFilled, mid.Status)
	require.Len(t, svc.secrets, 1)
	assert.Equal(t, order.Secrets[0], svc.secrets[0].Secret)
	assert.Equal(t, "ord-e2e", svc.secrets[0].OrderID)

	// settlement completes the swap
	svc.mu.Lock()
	svc.ready = nil
	svc.status = common.SettlementExecuted
	svc.mu.Unlock()

	done, err = o.tick(ctx, order.OrderID)
	require.NoError(t, err)
	assert.True(t, done)

	final, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusExecuted, final.Status)
	assert.Equal(t, 1, svc.secretCalls)
}

func TestCancelOrder(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(1),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-cancel"},
	}
	o, src := newTestOrchestrator(t, svc)
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	require.NoError(t, o.CancelOrder(ctx, order.OrderID))

	src.mu.Lock()
	assert.Equal(t, []string{"ord-cancel"}, src.cancelled)
	src.mu.Unlock()

	got, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, got.Status)

	assert.ErrorIs(t, o.CancelOrder(ctx, order.OrderID), common.ErrInvalidOrder)
	assert.ErrorIs(t, o.CancelOrder(ctx, "missing"), common.ErrOrderNotFound)
}

func TestCancelOrderRetriesAdapterCall(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(1),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-flaky-rpc"},
	}
	o, src := newTestOrchestratorWithPolicy(t, svc, retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond})
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	src.mu.Lock()
	src.cancelFailures = 2
	src.mu.Unlock()

	require.NoError(t, o.CancelOrder(ctx, order.OrderID))

	src.mu.Lock()
	assert.Equal(t, []string{"ord-flaky-rpc"}, src.cancelled)
	src.mu.Unlock()

	got, err := o.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, got.Status)
}

func TestPruneOrdersDropsTerminalOnly(t *testing.T) {
	svc := &fakeSettlement{
		quote:     testQuote(1),
		placeResp: &common.PlaceOrderResponse{OrderID: "ord-prune"},
	}
	o, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	order, err := o.CreateOrder(ctx, validParams())
	require.NoError(t, err)

	assert.Zero(t, o.PruneOrders())

	require.NoError(t, o.CancelOrder(ctx, order.OrderID))
	assert.Equal(t, 1, o.PruneOrders())
	assert.Empty(t, o.GetAllOrders())
}
