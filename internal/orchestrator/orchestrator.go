// Package orchestrator coordinates the full life of a cross-chain swap order:
// quoting, hash-lock generation, placement with the settlement service, fill
// monitoring and secret release.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/imkira/go-ttlmap"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/chain"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/hashlock"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/retry"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/settlement"
)

const (
	quoteTTL            = 15 * time.Minute
	defaultPollInterval = 5 * time.Second
)

// Options tunes orchestrator behavior. Zero values fall back to defaults.
type Options struct {
	RetryPolicy  retry.Policy
	PollInterval time.Duration
}

// Orchestrator owns the order store and one monitoring loop per live order.
type Orchestrator struct {
	registry    *chain.Registry
	settlement  settlement.Service
	store       *OrderStore
	broadcaster *common.Broadcaster
	quotes      *ttlmap.Map
	retry       retry.Policy
	poll        time.Duration
	logger      zerolog.Logger

	monitorMu sync.Mutex
	monitors  map[string]*tomb.Tomb
}

func New(registry *chain.Registry, svc settlement.Service, broadcaster *common.Broadcaster, opts Options, logger zerolog.Logger) *Orchestrator {
	policy := opts.RetryPolicy
	if policy.MaxAttempts < 1 {
		policy = retry.DefaultPolicy
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Orchestrator{
		registry:    registry,
		settlement:  svc,
		store:       NewOrderStore(),
		broadcaster: broadcaster,
		quotes:      ttlmap.New(&ttlmap.Options{InitialCapacity: 32}),
		retry:       policy,
		poll:        poll,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		monitors:    make(map[string]*tomb.Tomb),
	}
}

// GetQuote fetches a quote from the settlement service, serving repeats of the
// same request from a short-lived cache.
func (o *Orchestrator) GetQuote(ctx context.Context, params common.QuoteRequestParams) (*common.Quote, error) {
	key := quoteCacheKey(params)
	if item, err := o.quotes.Get(key); err == nil {
		if quote, ok := item.Value().(*common.Quote); ok {
			return quote, nil
		}
	}

	quote, err := retry.Do(ctx, o.retry, o.logger, "get quote", func(ctx context.Context) (*common.Quote, error) {
		return o.settlement.GetQuote(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	if err := o.quotes.Set(key, ttlmap.NewItem(quote, ttlmap.WithTTL(quoteTTL)), nil); err != nil {
		o.logger.Warn().Err(err).Msg("failed to cache quote")
	}
	return quote, nil
}

// CreateOrderParams is the caller's intent to open a swap.
type CreateOrderParams struct {
	SrcChain common.ChainID
	DstChain common.ChainID
	SrcAsset common.Asset
	DstAsset common.Asset
	Amount   string
	Maker    string
	Deadline int64
}

func (p CreateOrderParams) validate() error {
	if p.SrcChain == "" || p.DstChain == "" {
		return fmt.Errorf("%w: source and destination chains are required", common.ErrInvalidOrder)
	}
	if p.SrcChain == p.DstChain {
		return fmt.Errorf("%w: source and destination chains must differ", common.ErrInvalidOrder)
	}
	if p.Maker == "" {
		return fmt.Errorf("%w: maker address is required", common.ErrInvalidOrder)
	}
	amount, err := uint256.FromDecimal(p.Amount)
	if err != nil {
		return fmt.Errorf("%w: invalid amount %q", common.ErrInvalidOrder, p.Amount)
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", common.ErrInvalidOrder)
	}
	if p.Deadline <= time.Now().Unix() {
		return fmt.Errorf("%w: deadline must be in the future", common.ErrInvalidOrder)
	}
	return nil
}

// CreateOrder validates the request, quotes it, commits secrets for the quoted
// fill count, places the order with the settlement service and starts the
// monitoring loop for it.
func (o *Orchestrator) CreateOrder(ctx context.Context, params CreateOrderParams) (*common.Order, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	if _, err := o.registry.CreateAdapter(params.SrcChain); err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", common.ErrUnsupportedChainPair, params.SrcChain, params.DstChain)
	}
	if _, err := o.registry.CreateAdapter(params.DstChain); err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", common.ErrUnsupportedChainPair, params.SrcChain, params.DstChain)
	}

	quote, err := o.GetQuote(ctx, common.QuoteRequestParams{
		SrcChain:        string(params.SrcChain),
		DstChain:        string(params.DstChain),
		SrcTokenAddress: params.SrcAsset.Address,
		DstTokenAddress: params.DstAsset.Address,
		Amount:          params.Amount,
		WalletAddress:   params.Maker,
		EnableEstimate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to quote order: %w", err)
	}

	lock, err := hashlock.GenerateSecretsAndHashLock(quote.SecretsCount())
	if err != nil {
		return nil, fmt.Errorf("failed to generate hash lock: %w", err)
	}

	placed, err := retry.Do(ctx, o.retry, o.logger, "place order", func(ctx context.Context) (*common.PlaceOrderResponse, error) {
		return o.settlement.PlaceOrder(ctx, common.PlaceOrderRequest{
			QuoteID:       quote.QuoteID,
			WalletAddress: params.Maker,
			HashLock:      lock.HashLock,
			SecretHashes:  lock.SecretHashes,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	order := &common.Order{
		OrderID:      placed.OrderID,
		SrcChain:     params.SrcChain,
		DstChain:     params.DstChain,
		SrcAsset:     params.SrcAsset,
		DstAsset:     params.DstAsset,
		Amount:       params.Amount,
		MinReturn:    quote.DstTokenAmount,
		Maker:        params.Maker,
		Deadline:     params.Deadline,
		Status:       common.StatusPending,
		Secrets:      lock.Secrets,
		SecretHashes: lock.SecretHashes,
		HashLock:     lock.HashLock,
	}
	if err := o.store.Insert(order); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("orderId", order.OrderID).
		Str("srcChain", string(order.SrcChain)).
		Str("dstChain", string(order.DstChain)).
		Int("secrets", len(order.Secrets)).
		Msg("order placed")

	o.broadcaster.BroadcastOrderCreated(order)
	o.startMonitor(order.OrderID)
	return o.store.Get(order.OrderID)
}

// GetOrder returns a snapshot of one order.
func (o *Orchestrator) GetOrder(orderID string) (*common.Order, error) {
	return o.store.Get(orderID)
}

// GetAllOrders returns snapshots of every tracked order.
func (o *Orchestrator) GetAllOrders() []*common.Order {
	return o.store.All()
}

// CancelOrder cancels a live order on its source chain and stops its monitor.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID string) error {
	order, err := o.store.Get(orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: order %s is already %s", common.ErrInvalidOrder, orderID, order.Status)
	}

	adapter, err := o.registry.CreateAdapter(order.SrcChain)
	if err != nil {
		return err
	}
	if _, err := retry.Do(ctx, o.retry, o.logger, "cancel order", func(ctx context.Context) (*chain.TxResult, error) {
		return adapter.CancelOrder(ctx, orderID)
	}); err != nil {
		return fmt.Errorf("failed to cancel order on %s: %w", order.SrcChain, err)
	}

	if err := o.transition(orderID, common.StatusCancelled); err != nil {
		return err
	}
	o.stopMonitor(orderID)

	o.logger.Info().Str("orderId", orderID).Msg("order cancelled")
	return nil
}

// ApproveToken grants the given spender on the asset's chain.
func (o *Orchestrator) ApproveToken(ctx context.Context, asset common.Asset, spender, amount string) (*chain.TxResult, error) {
	adapter, err := o.registry.CreateAdapter(asset.ChainID)
	if err != nil {
		return nil, err
	}
	return retry.Do(ctx, o.retry, o.logger, "approve asset", func(ctx context.Context) (*chain.TxResult, error) {
		return adapter.ApproveAsset(ctx, asset, spender, amount)
	})
}

// PruneOrders drops terminal orders from the store.
func (o *Orchestrator) PruneOrders() int {
	pruned := o.store.Prune()
	if pruned > 0 {
		o.logger.Info().Int("pruned", pruned).Msg("terminal orders pruned")
	}
	return pruned
}

// SupportedChains lists the chains the registry can serve.
func (o *Orchestrator) SupportedChains() []common.ChainID {
	return o.registry.SupportedChains()
}

// Cleanup stops every monitor and disconnects all adapters.
func (o *Orchestrator) Cleanup() {
	o.monitorMu.Lock()
	monitors := make(map[string]*tomb.Tomb, len(o.monitors))
	for id, t := range o.monitors {
		monitors[id] = t
		delete(o.monitors, id)
	}
	o.monitorMu.Unlock()

	for id, t := range monitors {
		t.Kill(nil)
		if err := t.Wait(); err != nil {
			o.logger.Warn().Err(err).Str("orderId", id).Msg("monitor exited with error")
		}
	}

	o.registry.DisconnectAll()
	o.store.Clear()
	o.logger.Info().Msg("orchestrator shut down")
}

// transition updates an order's status and broadcasts the change. Transitions
// out of a terminal status are ignored.
func (o *Orchestrator) transition(orderID string, status common.OrderStatus) error {
	changed := false
	err := o.store.Update(orderID, func(order *common.Order) error {
		if order.Status.Terminal() || order.Status == status {
			return nil
		}
		order.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		o.broadcaster.BroadcastStatus(orderID, status)
	}
	return nil
}

func quoteCacheKey(p common.QuoteRequestParams) string {
	return strings.Join([]string{
		p.SrcChain, p.DstChain, p.SrcTokenAddress, p.DstTokenAddress, p.Amount, p.WalletAddress,
	}, "|")
}
