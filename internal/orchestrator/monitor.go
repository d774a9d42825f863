package orchestrator

import (
	"context"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/retry"
)

// startMonitor launches the per-order loop that polls settlement status and
// releases secrets for ready fills. One loop per order; repeat calls for the
// same id are no-ops.
func (o *Orchestrator) startMonitor(orderID string) {
	o.monitorMu.Lock()
	defer o.monitorMu.Unlock()

	if _, running := o.monitors[orderID]; running {
		return
	}

	t := &tomb.Tomb{}
	o.monitors[orderID] = t
	t.Go(func() error {
		defer o.dropMonitor(orderID)
		return o.monitorLoop(t, orderID)
	})
}

func (o *Orchestrator) stopMonitor(orderID string) {
	o.monitorMu.Lock()
	t, ok := o.monitors[orderID]
	o.monitorMu.Unlock()
	if ok {
		t.Kill(nil)
	}
}

func (o *Orchestrator) dropMonitor(orderID string) {
	o.monitorMu.Lock()
	defer o.monitorMu.Unlock()
	delete(o.monitors, orderID)
}

func (o *Orchestrator) monitorLoop(t *tomb.Tomb, orderID string) error {
	logger := o.logger.With().Str("orderId", orderID).Logger()
	logger.Debug().Msg("monitor started")

	ctx := t.Context(context.Background())
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			logger.Debug().Msg("monitor stopped")
			return nil
		case <-ticker.C:
		}

		done, err := o.tick(ctx, orderID)
		if err != nil {
			logger.Warn().Err(err).Msg("monitor tick failed")
			continue
		}
		if done {
			logger.Debug().Msg("monitor finished")
			return nil
		}
	}
}

// tick runs one monitoring pass. It reports done=true once the order reaches a
// terminal status or disappears from the store.
func (o *Orchestrator) tick(ctx context.Context, orderID string) (bool, error) {
	order, err := o.store.Get(orderID)
	if err != nil {
		return true, nil
	}
	if order.Status.Terminal() {
		return true, nil
	}

	status, err := retry.Do(ctx, o.retry, o.logger, "get order status", func(ctx context.Context) (*common.OrderStatusResponse, error) {
		return o.settlement.GetOrderStatus(ctx, orderID)
	})
	if err != nil {
		return false, err
	}

	switch status.Status {
	case common.SettlementExecuted:
		return true, o.transition(orderID, common.StatusExecuted)
	case common.SettlementCancelled:
		return true, o.transition(orderID, common.StatusCancelled)
	case common.SettlementExpired:
		return true, o.transition(orderID, common.StatusExpired)
	}

	return false, o.processReadyFills(ctx, order)
}

// processReadyFills releases the secret for every fill index the settlement
// service reports ready and not yet recorded. Membership is checked both on
// the snapshot and again under the store's write lock, so a secret goes out
// at most once per index even across overlapping ticks.
func (o *Orchestrator) processReadyFills(ctx context.Context, order *common.Order) error {
	ready, err := retry.Do(ctx, o.retry, o.logger, "get ready fills", func(ctx context.Context) (*common.ReadyToAcceptSecretFills, error) {
		return o.settlement.GetReadyToAcceptSecretFills(ctx, order.OrderID)
	})
	if err != nil {
		return err
	}

	for _, fill := range ready.Fills {
		if order.HasFill(fill.Idx) {
			continue
		}
		if err := o.releaseSecret(ctx, order, fill); err != nil {
			o.logger.Warn().Err(err).
				Str("orderId", order.OrderID).
				Int("fillIndex", fill.Idx).
				Msg("secret release failed")
		}
	}
	return nil
}

func (o *Orchestrator) releaseSecret(ctx context.Context, order *common.Order, ready common.ReadyToAcceptSecretFill) error {
	idx := ready.Idx
	if idx < 0 || idx >= len(order.Secrets) {
		return common.ErrInvalidOrder
	}

	claimed := false
	err := o.store.Update(order.OrderID, func(live *common.Order) error {
		if live.Status.Terminal() || live.HasFill(idx) {
			return nil
		}
		live.Fills = append(live.Fills, common.Fill{
			Index:     idx,
			Amount:    ready.Amount,
			TxHash:    ready.TxHash,
			Timestamp: time.Now().UTC(),
			Resolver:  ready.Resolver,
		})
		live.Status = common.StatusPartiallyFilled
		claimed = true
		return nil
	})
	if err != nil || !claimed {
		return err
	}

	_, err = retry.Do(ctx, o.retry, o.logger, "submit secret", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.settlement.SubmitSecret(ctx, common.SecretSubmission{
			OrderID: order.OrderID,
			Secret:  order.Secrets[idx],
		})
	})
	if err != nil {
		// give the slot back so a later tick can retry the release
		_ = o.store.Update(order.OrderID, func(live *common.Order) error {
			for i := range live.Fills {
				if live.Fills[i].Index == idx {
					live.Fills = append(live.Fills[:i], live.Fills[i+1:]...)
					break
				}
			}
			if len(live.Fills) == 0 && live.Status == common.StatusPartiallyFilled {
				live.Status = common.StatusPending
			}
			return nil
		})
		return err
	}

	o.logger.Info().
		Str("orderId", order.OrderID).
		Int("fillIndex", idx).
		Str("resolver", ready.Resolver).
		Msg("secret released")

	o.broadcaster.BroadcastFill(order.OrderID, common.Fill{
		Index:    idx,
		Amount:   ready.Amount,
		TxHash:   ready.TxHash,
		Resolver: ready.Resolver,
	})
	o.broadcaster.BroadcastStatus(order.OrderID, common.StatusPartiallyFilled)
	return nil
}
