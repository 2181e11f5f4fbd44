package saga

import (
	"context"
	"fmt"
	"time"

	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/models"
	"ChainMartCheckout/internal/store"
)

// fakeLedger is an in-memory stand-in for the Postgres store. It enforces
// the same invariants the schema does: one open order per buyer and the
// optimistic status guard.
type fakeLedger struct {
	orders    map[string]*models.Order
	attempts  []*models.SettlementAttempt
	nextID    int64
	escrowSeq int64
	wallets   map[string]*models.Wallet
	catalog   map[string]int64
	carts     map[string][]models.CartLine
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		orders:  map[string]*models.Order{},
		wallets: map[string]*models.Wallet{},
		catalog: map[string]int64{},
		carts:   map[string][]models.CartLine{},
	}
}

func (f *fakeLedger) NextEscrowIndex(ctx context.Context) (int64, error) {
	f.escrowSeq++
	return f.escrowSeq, nil
}

func (f *fakeLedger) CreateOrder(ctx context.Context, order *models.Order) error {
	for _, o := range f.orders {
		if o.BuyerID == order.BuyerID && !o.Status.Terminal() {
			return store.ErrCheckoutInProgress
		}
	}
	cp := *order
	f.orders[order.OrderID] = &cp
	return nil
}

func (f *fakeLedger) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeLedger) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, lastStep *models.SettlementStep, failureReason, txRef *string) error {
	o, ok := f.orders[orderID]
	if !ok {
		return store.ErrOrderNotFound
	}
	if o.Status != from {
		return store.ErrStaleOrder
	}
	o.Status = to
	if lastStep != nil {
		o.LastStep = lastStep
	}
	if failureReason != nil {
		o.FailureReason = failureReason
	}
	if txRef != nil {
		o.TxRef = txRef
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeLedger) InsertAttempt(ctx context.Context, attempt *models.SettlementAttempt) error {
	f.nextID++
	attempt.ID = f.nextID
	attempt.CreatedAt = time.Now().UTC()
	attempt.UpdatedAt = attempt.CreatedAt
	cp := *attempt
	f.attempts = append(f.attempts, &cp)
	return nil
}

func (f *fakeLedger) UpdateAttemptOutcome(ctx context.Context, attemptID int64, outcome models.AttemptOutcome, txRef *string) error {
	for _, a := range f.attempts {
		if a.ID == attemptID {
			a.Outcome = outcome
			if txRef != nil {
				a.TxRef = txRef
			}
			a.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("no attempt with id %d", attemptID)
}

func (f *fakeLedger) LatestAttempt(ctx context.Context, orderID string, step models.SettlementStep) (*models.SettlementAttempt, error) {
	for i := len(f.attempts) - 1; i >= 0; i-- {
		a := f.attempts[i]
		if a.OrderID == orderID && a.Step == step {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) ListUnresolvedAttempts(ctx context.Context, orderID string) ([]*models.SettlementAttempt, error) {
	var out []*models.SettlementAttempt
	for _, a := range f.attempts {
		if a.OrderID == orderID && (a.Outcome == models.AttemptPending || a.Outcome == models.AttemptUnknown) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLedger) attemptsFor(orderID string, step models.SettlementStep) []*models.SettlementAttempt {
	var out []*models.SettlementAttempt
	for _, a := range f.attempts {
		if a.OrderID == orderID && a.Step == step {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeLedger) SnapshotCartLines(ctx context.Context, buyerID string) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	for _, c := range f.carts[buyerID] {
		price, ok := f.catalog[c.InventoryID]
		if !ok {
			continue
		}
		lines = append(lines, models.OrderLine{
			InventoryID: c.InventoryID,
			Quantity:    c.Quantity,
			UnitPrice:   price,
		})
	}
	return lines, nil
}

func (f *fakeLedger) CartLines(ctx context.Context, buyerID string) ([]models.CartLine, error) {
	return f.carts[buyerID], nil
}

func (f *fakeLedger) ClearCart(ctx context.Context, buyerID string) error {
	delete(f.carts, buyerID)
	return nil
}

func (f *fakeLedger) GetWallet(ctx context.Context, buyerID string) (*models.Wallet, error) {
	w, ok := f.wallets[buyerID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	return w, nil
}

// fakeChain scripts gateway behavior per contract function. Unscripted
// calls succeed with a generated tx hash.
type execResult struct {
	receipt *chain.Receipt
	err     error
}

type fakeChain struct {
	balances  map[string]string
	results   map[string][]execResult
	executes  []chain.ExecuteRequest
	found     map[string]*chain.Tx
	findErrs  map[string]error
	findCalls []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: map[string]string{},
		results:  map[string][]execResult{},
		found:    map[string]*chain.Tx{},
		findErrs: map[string]error{},
	}
}

func (c *fakeChain) script(function string, res ...execResult) {
	c.results[function] = append(c.results[function], res...)
}

func (c *fakeChain) ExecuteContract(ctx context.Context, req chain.ExecuteRequest) (*chain.Receipt, error) {
	c.executes = append(c.executes, req)
	queue := c.results[req.Function]
	if len(queue) > 0 {
		res := queue[0]
		c.results[req.Function] = queue[1:]
		return res.receipt, res.err
	}
	return &chain.Receipt{TxHash: fmt.Sprintf("TX-%s-%d", req.Function, len(c.executes)), Height: int64(100 + len(c.executes))}, nil
}

func (c *fakeChain) GetBalance(ctx context.Context, accountID string) (string, error) {
	if bal, ok := c.balances[accountID]; ok {
		return bal, nil
	}
	return "1000000", nil
}

func (c *fakeChain) FindTransaction(ctx context.Context, token string) (*chain.Tx, error) {
	c.findCalls = append(c.findCalls, token)
	if err, ok := c.findErrs[token]; ok {
		return nil, err
	}
	return c.found[token], nil
}

func (c *fakeChain) LatestHeight(ctx context.Context) (int64, error) {
	return 100, nil
}

func (c *fakeChain) executesFor(function string) []chain.ExecuteRequest {
	var out []chain.ExecuteRequest
	for _, e := range c.executes {
		if e.Function == function {
			out = append(out, e)
		}
	}
	return out
}

type fixedDeriver struct{ prefix string }

func (d fixedDeriver) Derive(index uint32) (string, error) {
	return fmt.Sprintf("%s1escrow%d", d.prefix, index), nil
}
