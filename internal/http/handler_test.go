package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainMartCheckout/internal/models"
	"ChainMartCheckout/internal/saga"
	"ChainMartCheckout/internal/services"
	"ChainMartCheckout/internal/store"
)

type stubCheckout struct {
	beginOrder *models.Order
	beginErr   error

	getOrder    *models.Order
	getAttempts []*models.SettlementAttempt
	getErr      error

	lastBuyerID string
	lastOrderID string
}

func (s *stubCheckout) BeginCheckout(_ context.Context, buyerID string) (*models.Order, error) {
	s.lastBuyerID = buyerID
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.beginOrder, nil
}

func (s *stubCheckout) GetOrder(_ context.Context, orderID string) (*models.Order, []*models.SettlementAttempt, error) {
	s.lastOrderID = orderID
	if s.getErr != nil {
		return nil, nil, s.getErr
	}
	return s.getOrder, s.getAttempts, nil
}

func testOrder() *models.Order {
	step := models.StepPlaceOrder
	txRef := "TXAB"
	return &models.Order{
		OrderID:       "ord-1",
		BuyerID:       "buyer-1",
		Status:        models.OrderSettled,
		Total:         60,
		EscrowAddress: "mart1escrow",
		LastStep:      &step,
		TxRef:         &txRef,
		Lines: []models.OrderLine{
			{InventoryID: "sku-a", Quantity: 3, UnitPrice: 10},
			{InventoryID: "sku-b", Quantity: 2, UnitPrice: 15},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
	}
}

func doRequest(t *testing.T, stub *stubCheckout, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(NewHandler(stub))
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestBeginCheckoutAccepted(t *testing.T) {
	order := testOrder()
	order.Status = models.OrderPending
	stub := &stubCheckout{beginOrder: order}

	rec := doRequest(t, stub, http.MethodPost, "/checkout", map[string]string{"X-Buyer-Id": "buyer-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "buyer-1", stub.lastBuyerID)

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, int64(60), resp.Total)
}

func TestBeginCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"missing buyer", services.ErrMissingBuyerID, http.StatusUnauthorized},
		{"empty cart", saga.ErrEmptyCart, http.StatusBadRequest},
		{"no wallet", store.ErrWalletNotFound, http.StatusPreconditionFailed},
		{"in progress", store.ErrCheckoutInProgress, http.StatusConflict},
		{"other", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCheckout{beginErr: tc.err}
			rec := doRequest(t, stub, http.MethodPost, "/checkout", map[string]string{"X-Buyer-Id": "buyer-1"})
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestGetOrder(t *testing.T) {
	attemptTx := "TXAB"
	stub := &stubCheckout{
		getOrder: testOrder(),
		getAttempts: []*models.SettlementAttempt{
			{Step: models.StepTransfer, Outcome: models.AttemptSuccess, TxRef: &attemptTx, CreatedAt: time.Now()},
			{Step: models.StepApprove, Outcome: models.AttemptUnknown, CreatedAt: time.Now()},
		},
	}

	rec := doRequest(t, stub, http.MethodGet, "/orders/ord-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord-1", stub.lastOrderID)

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "settled", resp.Status)
	assert.Equal(t, "PLACE_ORDER", resp.LastStep)
	assert.Equal(t, "TXAB", resp.TxRef)
	require.Len(t, resp.Lines, 2)
	assert.Equal(t, "sku-a", resp.Lines[0].InventoryID)
	require.Len(t, resp.Attempts, 2)
	assert.Equal(t, "TRANSFER", resp.Attempts[0].Step)
	assert.Equal(t, "success", resp.Attempts[0].Outcome)
	assert.Equal(t, "TXAB", resp.Attempts[0].TxRef)
	assert.Empty(t, resp.Attempts[1].TxRef)
}

func TestGetOrderNotFound(t *testing.T) {
	stub := &stubCheckout{getErr: store.ErrOrderNotFound}
	rec := doRequest(t, stub, http.MethodGet, "/orders/ord-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, &stubCheckout{}, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
