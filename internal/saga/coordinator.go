package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/models"

	"github.com/google/uuid"
)

// Coordinator owns the order lifecycle. Steps are strictly ordered and
// non-skippable; every status change goes through the ledger's optimistic
// guard, so a second coordinator driving the same order loses cleanly with
// ErrStaleOrder instead of double-executing a step.
type Coordinator struct {
	Ledger         Ledger
	Executor       *Executor
	Reconciler     Reconciler
	Deriver        EscrowDeriver
	MaxStepRetries int
	BackoffBase    time.Duration
}

// Begin starts a checkout for a buyer: validates the wallet, snapshots the
// cart with current catalog prices, computes the total once, and persists
// the order in pending. No chain call happens here.
func (c *Coordinator) Begin(ctx context.Context, buyerID string) (*models.Order, error) {
	if _, err := c.Ledger.GetWallet(ctx, buyerID); err != nil {
		return nil, err
	}

	lines, err := c.Ledger.SnapshotCartLines(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	idx, err := c.Ledger.NextEscrowIndex(ctx)
	if err != nil {
		return nil, err
	}
	escrow, err := c.Deriver.Derive(uint32(idx))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:         uuid.NewString(),
		BuyerID:         buyerID,
		Total:           models.TotalOf(lines),
		Status:          models.OrderPending,
		EscrowAddress:   escrow,
		DerivationIndex: idx,
		Lines:           lines,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.Ledger.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Advance performs exactly one state transition. Chain steps retry with
// bounded exponential backoff on retryable failures; an unknown outcome
// pauses the saga with ErrUnresolvedOutcome and changes nothing.
func (c *Coordinator) Advance(ctx context.Context, orderID string) error {
	order, err := c.Ledger.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return nil
	}

	switch order.Status {
	case models.OrderPending:
		return c.Ledger.UpdateOrderStatus(ctx, orderID, models.OrderPending, models.OrderPersisted, nil, nil, nil)

	case models.OrderPlaced:
		if err := c.Ledger.UpdateOrderStatus(ctx, orderID, models.OrderPlaced, models.OrderSettled, nil, nil, nil); err != nil {
			return err
		}
		return c.Reconciler.Clear(ctx, order.BuyerID, orderID)
	}

	step, ok := models.NextStep(order.Status)
	if !ok {
		return fmt.Errorf("no transition from status %q", order.Status)
	}

	wallet, err := c.Ledger.GetWallet(ctx, order.BuyerID)
	if err != nil {
		return err
	}

	outcome, err := c.runStepWithRetry(ctx, order, wallet, step)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case models.AttemptSuccess:
		var txRef *string
		if outcome.TxRef != "" {
			txRef = &outcome.TxRef
		}
		return c.Ledger.UpdateOrderStatus(ctx, orderID, order.Status, models.StatusAfter(step), &step, nil, txRef)

	case models.AttemptUnknown:
		return fmt.Errorf("%w: order %s step %s", ErrUnresolvedOutcome, orderID, step)

	default:
		return c.markFailed(ctx, order, step, outcome.Err)
	}
}

func (c *Coordinator) runStepWithRetry(ctx context.Context, order *models.Order, wallet *models.Wallet, step models.SettlementStep) (Outcome, error) {
	retries := c.MaxStepRetries
	if retries <= 0 {
		retries = 1
	}

	var outcome Outcome
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return Outcome{}, err
			}
		}

		var err error
		outcome, err = c.Executor.RunStep(ctx, order, wallet, step)
		if err != nil {
			return Outcome{}, err
		}

		switch outcome.Status {
		case models.AttemptSuccess, models.AttemptUnknown:
			return outcome, nil
		}
		if !chain.IsRetryable(outcome.Err) {
			return outcome, nil
		}
	}
	return outcome, nil
}

func (c *Coordinator) backoff(ctx context.Context, attempt int) error {
	base := c.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << (attempt - 1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) markFailed(ctx context.Context, order *models.Order, step models.SettlementStep, cause error) error {
	reason := fmt.Sprintf("%s failed", step)
	if cause != nil {
		reason = fmt.Sprintf("%s failed: %v", step, cause)
	}
	if step != models.StepTransfer {
		// Funds already left the buyer's account. Flag them for
		// compensation rather than losing track silently.
		reason += fmt.Sprintf("; funds held in escrow %s pending compensation", order.EscrowAddress)
	}
	return c.Ledger.UpdateOrderStatus(ctx, order.OrderID, order.Status, models.OrderFailed, &step, &reason, nil)
}

// Run advances the order until it is terminal or the saga has to pause
// (unknown outcome, exhausted retries already recorded, context done).
func (c *Coordinator) Run(ctx context.Context, orderID string) error {
	for {
		order, err := c.Ledger.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return nil
		}
		if err := c.Advance(ctx, orderID); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Recover resumes an order after a process restart. Unresolved attempts are
// reconciled against true chain state first; a call whose outcome is unknown
// is never re-issued blindly.
func (c *Coordinator) Recover(ctx context.Context, orderID string) error {
	attempts, err := c.Ledger.ListUnresolvedAttempts(ctx, orderID)
	if err != nil {
		return err
	}
	for _, attempt := range attempts {
		resolved, err := c.Executor.Reconcile(ctx, attempt)
		if err != nil {
			return fmt.Errorf("%w: reconcile %s/%s: %v", ErrUnresolvedOutcome, orderID, attempt.Step, err)
		}
		if resolved.Status == models.AttemptFailed && chain.IsFatal(resolved.Err) {
			// The chain rejected the call; the step cannot succeed and
			// must not be re-issued by the resumed run.
			order, err := c.Ledger.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if order.Status.Terminal() {
				return nil
			}
			return c.markFailed(ctx, order, attempt.Step, resolved.Err)
		}
	}
	return c.Run(ctx, orderID)
}

// IsPaused reports whether an error from Run/Advance just means the saga is
// waiting on the outside world rather than broken.
func IsPaused(err error) bool {
	return errors.Is(err, ErrUnresolvedOutcome)
}
