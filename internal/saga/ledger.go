package saga

import (
	"context"
	"errors"

	"ChainMartCheckout/internal/models"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUnresolvedOutcome pauses the saga: the last chain call's result is
	// unknown and must be reconciled before anything else happens.
	ErrUnresolvedOutcome = errors.New("settlement outcome unresolved")
)

// Ledger is the slice of the order store the saga writes through. The
// coordinator is the only writer of order status.
type Ledger interface {
	NextEscrowIndex(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, lastStep *models.SettlementStep, failureReason, txRef *string) error

	InsertAttempt(ctx context.Context, attempt *models.SettlementAttempt) error
	UpdateAttemptOutcome(ctx context.Context, attemptID int64, outcome models.AttemptOutcome, txRef *string) error
	LatestAttempt(ctx context.Context, orderID string, step models.SettlementStep) (*models.SettlementAttempt, error)
	ListUnresolvedAttempts(ctx context.Context, orderID string) ([]*models.SettlementAttempt, error)

	SnapshotCartLines(ctx context.Context, buyerID string) ([]models.OrderLine, error)
	GetWallet(ctx context.Context, buyerID string) (*models.Wallet, error)
}

// Reconciler clears a buyer's cart once their order has settled.
type Reconciler interface {
	Clear(ctx context.Context, buyerID, orderID string) error
}

// EscrowDeriver derives the per-order escrow address for a derivation index.
type EscrowDeriver interface {
	Derive(index uint32) (string, error)
}
