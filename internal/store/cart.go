package store

import (
	"context"
	"errors"
	"fmt"

	"ChainMartCheckout/internal/models"

	"github.com/jackc/pgx/v5"
)

// SnapshotCartLines joins the buyer's cart against the catalog to capture
// authoritative unit prices at this instant. The result is the immutable
// order line snapshot; later catalog changes do not touch it.
func (s *Store) SnapshotCartLines(ctx context.Context, buyerID string) ([]models.OrderLine, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT c.inventory_id, c.quantity, i.unit_price
		FROM cart c
		JOIN inventory i ON i.id = c.inventory_id
		WHERE c.buyer_id=$1
		ORDER BY c.inventory_id
	`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("snapshot cart: %w", err)
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

func (s *Store) CartLines(ctx context.Context, buyerID string) ([]models.CartLine, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, buyer_id, inventory_id, quantity
		FROM cart WHERE buyer_id=$1
		ORDER BY inventory_id
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.BuyerID, &l.InventoryID, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ClearCart deletes the buyer's cart rows. Deleting zero rows is not an
// error, which keeps retries of a clear idempotent.
func (s *Store) ClearCart(ctx context.Context, buyerID string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM cart WHERE buyer_id=$1`, buyerID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Store) GetWallet(ctx context.Context, buyerID string) (*models.Wallet, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT buyer_id, account_id, credential
		FROM wallets WHERE buyer_id=$1
	`, buyerID)

	var w models.Wallet
	if err := row.Scan(&w.BuyerID, &w.AccountID, &w.Credential); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}
