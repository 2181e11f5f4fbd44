package models

import "time"

type OrderStatus string

const (
	OrderPending     OrderStatus = "pending"
	OrderPersisted   OrderStatus = "order_persisted"
	OrderTransferred OrderStatus = "transferred"
	OrderApproved    OrderStatus = "approved"
	OrderPlaced      OrderStatus = "placed"
	OrderSettled     OrderStatus = "settled"
	OrderFailed      OrderStatus = "failed"
)

// Terminal reports whether the saga can no longer move this order.
func (s OrderStatus) Terminal() bool {
	return s == OrderSettled || s == OrderFailed
}

type SettlementStep string

const (
	StepTransfer   SettlementStep = "TRANSFER"
	StepApprove    SettlementStep = "APPROVE"
	StepPlaceOrder SettlementStep = "PLACE_ORDER"
)

type AttemptOutcome string

const (
	AttemptPending AttemptOutcome = "pending"
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailed  AttemptOutcome = "failed"
	AttemptUnknown AttemptOutcome = "unknown"
)

type Order struct {
	OrderID         string
	BuyerID         string
	Total           int64
	Status          OrderStatus
	LastStep        *SettlementStep
	FailureReason   *string
	TxRef           *string
	EscrowAddress   string
	DerivationIndex int64
	Lines           []OrderLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderLine is the immutable snapshot of one cart line; UnitPrice is captured
// at checkout time and never recomputed from the catalog.
type OrderLine struct {
	InventoryID string
	Quantity    int64
	UnitPrice   int64
}

type CartLine struct {
	ID          string
	BuyerID     string
	InventoryID string
	Quantity    int64
}

type SettlementAttempt struct {
	ID               int64
	OrderID          string
	Step             SettlementStep
	IdempotencyToken string
	Outcome          AttemptOutcome
	TxRef            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Wallet is the chain account record for a buyer. Custody lives elsewhere;
// the credential here is whatever the chain gateway accepts.
type Wallet struct {
	BuyerID    string
	AccountID  string
	Credential string
}

// LineTotal multiplies quantity by the snapshotted unit price.
func (l OrderLine) LineTotal() int64 {
	return l.Quantity * l.UnitPrice
}

// TotalOf sums line totals in integral minor units.
func TotalOf(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotal()
	}
	return total
}

// NextStep maps a non-terminal status to the chain step that advances it.
// Returns false for statuses that advance without a chain call.
func NextStep(status OrderStatus) (SettlementStep, bool) {
	switch status {
	case OrderPersisted:
		return StepTransfer, true
	case OrderTransferred:
		return StepApprove, true
	case OrderApproved:
		return StepPlaceOrder, true
	}
	return "", false
}

// StatusAfter is the status an order reaches once the given step succeeds.
func StatusAfter(step SettlementStep) OrderStatus {
	switch step {
	case StepTransfer:
		return OrderTransferred
	case StepApprove:
		return OrderApproved
	case StepPlaceOrder:
		return OrderPlaced
	}
	return OrderFailed
}
