package worker

import (
	"context"
	"log"
	"time"

	"ChainMartCheckout/internal/cart"
	"ChainMartCheckout/internal/saga"
	"ChainMartCheckout/internal/store"
)

// clearRetryWindow bounds the settled-order cart sweep. Outside it a
// buyer's cart rows are assumed to be a new cart, not clear leftovers.
const clearRetryWindow = 15 * time.Minute

// Worker drives open sagas to completion. One process iterates orders
// sequentially; steps of a single order are never concurrent, and the
// ledger's optimistic status guard keeps a second worker harmless.
type Worker struct {
	Store               *store.Store
	Coordinator         *saga.Coordinator
	Interval            time.Duration
	WSEndpoints         []string
	WSFailoverThreshold int

	recovered bool
}

func (w *Worker) Run(ctx context.Context) {
	go w.RunWS(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.SyncOnce(ctx); err != nil {
			log.Printf("sync error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce runs every open order once. The first pass after process start
// goes through Recover so unknown outcomes are reconciled against the chain
// before any call is re-issued.
func (w *Worker) SyncOnce(ctx context.Context) error {
	orders, err := w.Store.ListOpenOrders(ctx)
	if err != nil {
		return err
	}
	firstPass := !w.recovered
	w.recovered = true

	if err := w.retryClears(ctx); err != nil {
		log.Printf("clear retry sweep failed: %v", err)
	}

	if len(orders) == 0 {
		return nil
	}
	log.Printf("sync open=%d recover=%v", len(orders), firstPass)

	for _, order := range orders {
		var err error
		if firstPass {
			err = w.Coordinator.Recover(ctx, order.OrderID)
		} else {
			err = w.Coordinator.Run(ctx, order.OrderID)
		}
		switch {
		case err == nil:
		case saga.IsPaused(err):
			log.Printf("order %s paused: %v", order.OrderID, err)
		default:
			log.Printf("order %s advance failed: %v", order.OrderID, err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// retryClears finishes cart clears that were lost between the settled
// transition and the delete. Clear is idempotent so re-running is safe.
func (w *Worker) retryClears(ctx context.Context) error {
	orders, err := w.Store.ListSettledWithCart(ctx, time.Now().Add(-clearRetryWindow))
	if err != nil {
		return err
	}

	r := cart.Reconciler{Store: w.Store}
	for _, order := range orders {
		if err := r.Clear(ctx, order.BuyerID, order.OrderID); err != nil {
			log.Printf("order %s clear retry failed: %v", order.OrderID, err)
			continue
		}
		log.Printf("order %s cart cleared on retry", order.OrderID)
	}
	return nil
}
