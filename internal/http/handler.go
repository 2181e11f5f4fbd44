package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ChainMartCheckout/internal/models"
	"ChainMartCheckout/internal/saga"
	"ChainMartCheckout/internal/services"
	"ChainMartCheckout/internal/store"

	"github.com/go-chi/chi/v5"
)

// CheckoutAPI is what the transport needs from the checkout service.
type CheckoutAPI interface {
	BeginCheckout(ctx context.Context, buyerID string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, []*models.SettlementAttempt, error)
}

type Handler struct {
	Checkout CheckoutAPI
}

func NewHandler(checkout CheckoutAPI) *Handler {
	return &Handler{Checkout: checkout}
}

type checkoutResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Total   int64  `json:"total"`
}

type orderResponse struct {
	OrderID       string            `json:"orderId"`
	Status        string            `json:"status"`
	Total         int64             `json:"total"`
	LastStep      string            `json:"lastStep,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	TxRef         string            `json:"txRef,omitempty"`
	Lines         []lineResponse    `json:"lines"`
	Attempts      []attemptResponse `json:"attempts"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
}

type lineResponse struct {
	InventoryID string `json:"inventoryId"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
}

type attemptResponse struct {
	Step      string `json:"step"`
	Outcome   string `json:"outcome"`
	TxRef     string `json:"txRef,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get("X-Buyer-Id")
	order, err := h.Checkout.BeginCheckout(r.Context(), buyerID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingBuyerID):
			writeError(w, http.StatusUnauthorized, "missing buyer id")
		case errors.Is(err, saga.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, store.ErrWalletNotFound):
			writeError(w, http.StatusPreconditionFailed, "no wallet on record for buyer")
		case errors.Is(err, store.ErrCheckoutInProgress):
			writeError(w, http.StatusConflict, "checkout already in progress")
		default:
			writeError(w, http.StatusInternalServerError, "begin checkout failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, checkoutResponse{
		OrderID: order.OrderID,
		Status:  string(order.Status),
		Total:   order.Total,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, attempts, err := h.Checkout.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get order failed")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, attempts))
}

func toOrderResponse(order *models.Order, attempts []*models.SettlementAttempt) orderResponse {
	resp := orderResponse{
		OrderID:   order.OrderID,
		Status:    string(order.Status),
		Total:     order.Total,
		Lines:     make([]lineResponse, 0, len(order.Lines)),
		Attempts:  make([]attemptResponse, 0, len(attempts)),
		CreatedAt: order.CreatedAt.Format(time.RFC3339),
		UpdatedAt: order.UpdatedAt.Format(time.RFC3339),
	}
	if order.LastStep != nil {
		resp.LastStep = string(*order.LastStep)
	}
	if order.FailureReason != nil {
		resp.FailureReason = *order.FailureReason
	}
	if order.TxRef != nil {
		resp.TxRef = *order.TxRef
	}
	for _, l := range order.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			InventoryID: l.InventoryID,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	for _, a := range attempts {
		ar := attemptResponse{
			Step:      string(a.Step),
			Outcome:   string(a.Outcome),
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
		if a.TxRef != nil {
			ar.TxRef = *a.TxRef
		}
		resp.Attempts = append(resp.Attempts, ar)
	}
	return resp
}
