package cart

import (
	"context"
	"errors"
	"fmt"

	"ChainMartCheckout/internal/models"
)

// ErrPrematureClear guards the settle-then-clear ordering: cart rows may
// only disappear once the order they settled into is durably settled.
var ErrPrematureClear = errors.New("order not settled; cart left untouched")

type Store interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SnapshotCartLines(ctx context.Context, buyerID string) ([]models.OrderLine, error)
	CartLines(ctx context.Context, buyerID string) ([]models.CartLine, error)
	ClearCart(ctx context.Context, buyerID string) error
}

// Reader captures a buyer's cart as an immutable order line snapshot with
// the catalog prices in force at the moment of the call.
type Reader struct {
	Store Store
}

func (r Reader) Snapshot(ctx context.Context, buyerID string) ([]models.OrderLine, error) {
	return r.Store.SnapshotCartLines(ctx, buyerID)
}

func (r Reader) Lines(ctx context.Context, buyerID string) ([]models.CartLine, error) {
	return r.Store.CartLines(ctx, buyerID)
}

// Reconciler clears carts for settled orders. Clear is idempotent: a crash
// after settlement just leaves rows that a retried Clear removes.
type Reconciler struct {
	Store Store
}

func (r Reconciler) Clear(ctx context.Context, buyerID, orderID string) error {
	order, err := r.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderSettled {
		return fmt.Errorf("%w (order %s is %s)", ErrPrematureClear, orderID, order.Status)
	}
	if order.BuyerID != buyerID {
		return fmt.Errorf("order %s does not belong to buyer %s", orderID, buyerID)
	}
	return r.Store.ClearCart(ctx, buyerID)
}
