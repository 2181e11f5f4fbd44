package store

import (
	"context"
	"errors"
	"fmt"

	"ChainMartCheckout/internal/models"

	"github.com/jackc/pgx/v5"
)

// InsertAttempt records one executor invocation before the chain call is
// dispatched, so a crash mid-call leaves a pending row behind for recovery.
func (s *Store) InsertAttempt(ctx context.Context, attempt *models.SettlementAttempt) error {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO settlement_attempts (order_id, step, idempotency_token, outcome, tx_ref)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at, updated_at
	`,
		attempt.OrderID,
		attempt.Step,
		attempt.IdempotencyToken,
		attempt.Outcome,
		attempt.TxRef,
	)
	if err := row.Scan(&attempt.ID, &attempt.CreatedAt, &attempt.UpdatedAt); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *Store) UpdateAttemptOutcome(ctx context.Context, attemptID int64, outcome models.AttemptOutcome, txRef *string) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE settlement_attempts
		SET outcome=$2, tx_ref=COALESCE($3, tx_ref), updated_at=now()
		WHERE id=$1
	`, attemptID, outcome, txRef)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("update attempt: no row with id %d", attemptID)
	}
	return nil
}

const attemptColumns = `id, order_id, step, idempotency_token, outcome, tx_ref,
	created_at, updated_at`

// LatestAttempt returns the most recent attempt for (order, step), or nil.
func (s *Store) LatestAttempt(ctx context.Context, orderID string, step models.SettlementStep) (*models.SettlementAttempt, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM settlement_attempts
		WHERE order_id=$1 AND step=$2
		ORDER BY id DESC LIMIT 1
	`, orderID, step)
	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return attempt, nil
}

// ListUnresolvedAttempts lists pending and unknown attempts for an order.
func (s *Store) ListUnresolvedAttempts(ctx context.Context, orderID string) ([]*models.SettlementAttempt, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM settlement_attempts
		WHERE order_id=$1 AND outcome IN ('pending','unknown')
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

func (s *Store) AttemptsByOrder(ctx context.Context, orderID string) ([]*models.SettlementAttempt, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM settlement_attempts
		WHERE order_id=$1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// ResolveAttemptByToken settles every still-unresolved attempt carrying the
// token. Used by the websocket watcher when a settlement event arrives.
func (s *Store) ResolveAttemptByToken(ctx context.Context, token string, outcome models.AttemptOutcome, txRef *string) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE settlement_attempts
		SET outcome=$2, tx_ref=COALESCE($3, tx_ref), updated_at=now()
		WHERE idempotency_token=$1 AND outcome IN ('pending','unknown')
	`, token, outcome, txRef)
	if err != nil {
		return 0, fmt.Errorf("resolve attempt by token: %w", err)
	}
	return res.RowsAffected(), nil
}

func collectAttempts(rows pgx.Rows) ([]*models.SettlementAttempt, error) {
	defer rows.Close()
	var attempts []*models.SettlementAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*models.SettlementAttempt, error) {
	var a models.SettlementAttempt
	err := row.Scan(
		&a.ID,
		&a.OrderID,
		&a.Step,
		&a.IdempotencyToken,
		&a.Outcome,
		&a.TxRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
