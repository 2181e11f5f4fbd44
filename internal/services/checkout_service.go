package services

import (
	"context"
	"errors"

	"ChainMartCheckout/internal/models"
	"ChainMartCheckout/internal/saga"
	"ChainMartCheckout/internal/store"
)

var ErrMissingBuyerID = errors.New("missing buyer id")

// CheckoutService is the API-facing face of the saga. It only starts
// checkouts and reads order state; driving a saga to completion is the
// worker's job, since settlement outlives the HTTP request that started it.
type CheckoutService struct {
	Store       *store.Store
	Coordinator *saga.Coordinator
}

func (s *CheckoutService) BeginCheckout(ctx context.Context, buyerID string) (*models.Order, error) {
	if buyerID == "" {
		return nil, ErrMissingBuyerID
	}
	return s.Coordinator.Begin(ctx, buyerID)
}

func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, []*models.SettlementAttempt, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := s.Store.AttemptsByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, attempts, nil
}
