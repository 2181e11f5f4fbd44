package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChainMartCheckout/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStaleOrder means the optimistic status guard did not match: another
	// coordinator moved the order first. Re-fetch before retrying.
	ErrStaleOrder         = errors.New("stale order status")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrWalletNotFound     = errors.New("wallet not found")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) NextEscrowIndex(ctx context.Context) (int64, error) {
	var idx int64
	err := s.Pool.QueryRow(ctx, "SELECT nextval('order_escrow_index_seq')").Scan(&idx)
	return idx, err
}

// CreateOrder inserts the order header and its line snapshot in one
// transaction. The partial unique index on open orders turns a second
// in-flight checkout for the same buyer into ErrCheckoutInProgress.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			order_id, buyer_id, total, status, last_step, failure_reason,
			tx_ref, escrow_address, derivation_index
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.OrderID,
		order.BuyerID,
		order.Total,
		order.Status,
		order.LastStep,
		order.FailureReason,
		order.TxRef,
		order.EscrowAddress,
		order.DerivationIndex,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCheckoutInProgress
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, inventory_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4)
		`, order.OrderID, line.InventoryID, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const orderColumns = `order_id, buyer_id, total, status, last_step,
	failure_reason, tx_ref, escrow_address, derivation_index,
	created_at, updated_at`

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	lines, err := s.orderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

// GetOpenOrderByBuyer returns the buyer's non-terminal order, or nil.
func (s *Store) GetOpenOrderByBuyer(ctx context.Context, buyerID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE buyer_id=$1 AND status NOT IN ('settled','failed')
	`, buyerID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOpenOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status NOT IN ('settled','failed')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ListSettledWithCart returns orders settled after the cutoff whose buyer
// still has cart rows: a crash between settlement and the cart clear leaves
// exactly this state behind, and a retried clear recovers it.
func (s *Store) ListSettledWithCart(ctx context.Context, cutoff time.Time) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders o
		WHERE o.status='settled'
		  AND o.updated_at >= $1
		  AND EXISTS (SELECT 1 FROM cart c WHERE c.buyer_id = o.buyer_id)
		ORDER BY o.updated_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus moves an order from one status to another. The expected
// prior status is part of the WHERE clause so two coordinators can never both
// win the same transition.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, lastStep *models.SettlementStep, failureReason, txRef *string) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$3,
			last_step=COALESCE($4, last_step),
			failure_reason=COALESCE($5, failure_reason),
			tx_ref=COALESCE($6, tx_ref),
			updated_at=now()
		WHERE order_id=$1 AND status=$2
	`, orderID, from, to, lastStep, failureReason, txRef)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrStaleOrder
	}
	return nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT inventory_id, quantity, unit_price
		FROM order_items WHERE order_id=$1
		ORDER BY inventory_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.InventoryID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	err := row.Scan(
		&order.OrderID,
		&order.BuyerID,
		&order.Total,
		&order.Status,
		&order.LastStep,
		&order.FailureReason,
		&order.TxRef,
		&order.EscrowAddress,
		&order.DerivationIndex,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
