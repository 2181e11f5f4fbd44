package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainMartCheckout/internal/models"
	"ChainMartCheckout/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.Truncate(t, ctx, pool)
	return New(pool), ctx
}

func seedCatalog(t *testing.T, ctx context.Context, s *Store, buyerID string) {
	t.Helper()
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO inventory (id, unit_price) VALUES ('sku-a', 10), ('sku-b', 15)
	`)
	require.NoError(t, err)
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO cart (buyer_id, inventory_id, quantity)
		VALUES ($1, 'sku-a', 3), ($1, 'sku-b', 2)
	`, buyerID)
	require.NoError(t, err)
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO wallets (buyer_id, account_id, credential)
		VALUES ($1, 'acct-1', 'cred-1')
	`, buyerID)
	require.NoError(t, err)
}

func newOrder(buyerID string) *models.Order {
	return &models.Order{
		OrderID:         uuid.NewString(),
		BuyerID:         buyerID,
		Total:           60,
		Status:          models.OrderPending,
		EscrowAddress:   "mart1escrow",
		DerivationIndex: 1,
		Lines: []models.OrderLine{
			{InventoryID: "sku-a", Quantity: 3, UnitPrice: 10},
			{InventoryID: "sku-b", Quantity: 2, UnitPrice: 15},
		},
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	s, ctx := newTestStore(t)

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))

	got, err := s.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, got.OrderID)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.Equal(t, int64(60), got.Total)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "sku-a", got.Lines[0].InventoryID)
	assert.Equal(t, int64(10), got.Lines[0].UnitPrice)

	_, err = s.GetOrder(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOpenOrderUniquePerBuyer(t *testing.T) {
	s, ctx := newTestStore(t)

	first := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, first))

	err := s.CreateOrder(ctx, newOrder("buyer-1"))
	assert.ErrorIs(t, err, ErrCheckoutInProgress)

	// A different buyer is unaffected.
	require.NoError(t, s.CreateOrder(ctx, newOrder("buyer-2")))

	// Once the first order reaches a terminal status the slot frees up.
	require.NoError(t, s.UpdateOrderStatus(ctx, first.OrderID, models.OrderPending, models.OrderFailed, nil, nil, nil))
	require.NoError(t, s.CreateOrder(ctx, newOrder("buyer-1")))
}

func TestGetOpenOrderByBuyer(t *testing.T) {
	s, ctx := newTestStore(t)

	got, err := s.GetOpenOrderByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))

	got, err = s.GetOpenOrderByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.OrderID, got.OrderID)
}

func TestUpdateOrderStatusOptimisticGuard(t *testing.T) {
	s, ctx := newTestStore(t)

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))

	step := models.StepTransfer
	txRef := "TXAB"
	require.NoError(t, s.UpdateOrderStatus(ctx, order.OrderID, models.OrderPending, models.OrderPersisted, nil, nil, nil))
	require.NoError(t, s.UpdateOrderStatus(ctx, order.OrderID, models.OrderPersisted, models.OrderTransferred, &step, nil, &txRef))

	// The same transition cannot be won twice.
	err := s.UpdateOrderStatus(ctx, order.OrderID, models.OrderPersisted, models.OrderTransferred, &step, nil, nil)
	assert.ErrorIs(t, err, ErrStaleOrder)

	got, err := s.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderTransferred, got.Status)
	require.NotNil(t, got.LastStep)
	assert.Equal(t, models.StepTransfer, *got.LastStep)
	require.NotNil(t, got.TxRef)
	assert.Equal(t, "TXAB", *got.TxRef)
}

func TestAttemptLifecycle(t *testing.T) {
	s, ctx := newTestStore(t)

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))

	token := uuid.NewString()
	attempt := &models.SettlementAttempt{
		OrderID:          order.OrderID,
		Step:             models.StepTransfer,
		IdempotencyToken: token,
		Outcome:          models.AttemptPending,
	}
	require.NoError(t, s.InsertAttempt(ctx, attempt))
	assert.NotZero(t, attempt.ID)

	unresolved, err := s.ListUnresolvedAttempts(ctx, order.OrderID)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	txRef := "TXAB"
	require.NoError(t, s.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptSuccess, &txRef))

	latest, err := s.LatestAttempt(ctx, order.OrderID, models.StepTransfer)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AttemptSuccess, latest.Outcome)
	require.NotNil(t, latest.TxRef)
	assert.Equal(t, "TXAB", *latest.TxRef)

	unresolved, err = s.ListUnresolvedAttempts(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	latest, err = s.LatestAttempt(ctx, order.OrderID, models.StepApprove)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestLatestAttemptPicksNewest(t *testing.T) {
	s, ctx := newTestStore(t)

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))

	token := uuid.NewString()
	first := &models.SettlementAttempt{
		OrderID: order.OrderID, Step: models.StepTransfer,
		IdempotencyToken: token, Outcome: models.AttemptFailed,
	}
	require.NoError(t, s.InsertAttempt(ctx, first))

	second := &models.SettlementAttempt{
		OrderID: order.OrderID, Step: models.StepTransfer,
		IdempotencyToken: token, Outcome: models.AttemptPending,
	}
	require.NoError(t, s.InsertAttempt(ctx, second))

	latest, err := s.LatestAttempt(ctx, order.OrderID, models.StepTransfer)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, models.AttemptPending, latest.Outcome)
}

func TestResolveAttemptByToken(t *testing.T) {
	s, ctx := newTestStore(t)

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))

	token := uuid.NewString()
	attempt := &models.SettlementAttempt{
		OrderID: order.OrderID, Step: models.StepApprove,
		IdempotencyToken: token, Outcome: models.AttemptUnknown,
	}
	require.NoError(t, s.InsertAttempt(ctx, attempt))

	txRef := "TXCD"
	n, err := s.ResolveAttemptByToken(ctx, token, models.AttemptSuccess, &txRef)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Already resolved: a second event is a no-op.
	n, err = s.ResolveAttemptByToken(ctx, token, models.AttemptFailed, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	latest, err := s.LatestAttempt(ctx, order.OrderID, models.StepApprove)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSuccess, latest.Outcome)
}

func TestCartSnapshotAndClear(t *testing.T) {
	s, ctx := newTestStore(t)
	seedCatalog(t, ctx, s, "buyer-1")

	lines, err := s.SnapshotCartLines(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, models.OrderLine{InventoryID: "sku-a", Quantity: 3, UnitPrice: 10}, lines[0])
	assert.Equal(t, models.OrderLine{InventoryID: "sku-b", Quantity: 2, UnitPrice: 15}, lines[1])
	assert.Equal(t, int64(60), models.TotalOf(lines))

	// Catalog price changes after the snapshot do not alter captured lines.
	_, err = s.Pool.Exec(ctx, `UPDATE inventory SET unit_price=99 WHERE id='sku-a'`)
	require.NoError(t, err)
	assert.Equal(t, int64(10), lines[0].UnitPrice)

	require.NoError(t, s.ClearCart(ctx, "buyer-1"))
	cartLines, err := s.CartLines(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, cartLines)

	// Clearing an already empty cart is fine.
	require.NoError(t, s.ClearCart(ctx, "buyer-1"))
}

func TestListSettledWithCart(t *testing.T) {
	s, ctx := newTestStore(t)
	seedCatalog(t, ctx, s, "buyer-1")

	order := newOrder("buyer-1")
	require.NoError(t, s.CreateOrder(ctx, order))
	cutoff := time.Now().Add(-time.Minute)

	// An open order with cart rows is not a lost clear.
	got, err := s.ListSettledWithCart(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.UpdateOrderStatus(ctx, order.OrderID, models.OrderPending, models.OrderSettled, nil, nil, nil))

	got, err = s.ListSettledWithCart(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, order.OrderID, got[0].OrderID)

	// Once the cart is cleared the order drops out of the sweep.
	require.NoError(t, s.ClearCart(ctx, "buyer-1"))
	got, err = s.ListSettledWithCart(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Cart rows that reappear after the window are a new cart, not leftovers.
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO cart (buyer_id, inventory_id, quantity) VALUES ('buyer-1', 'sku-a', 1)
	`)
	require.NoError(t, err)
	got, err = s.ListSettledWithCart(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetWallet(t *testing.T) {
	s, ctx := newTestStore(t)
	seedCatalog(t, ctx, s, "buyer-1")

	w, err := s.GetWallet(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", w.AccountID)
	assert.Equal(t, "cred-1", w.Credential)

	_, err = s.GetWallet(ctx, "buyer-unknown")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestNextEscrowIndex(t *testing.T) {
	s, ctx := newTestStore(t)

	a, err := s.NextEscrowIndex(ctx)
	require.NoError(t, err)
	b, err := s.NextEscrowIndex(ctx)
	require.NoError(t, err)
	assert.Greater(t, b, a)
}
