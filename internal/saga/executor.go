package saga

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/models"

	"github.com/google/uuid"
)

// Executor runs a single settlement step against the chain gateway. Every
// dispatch is preceded by a persisted attempt row carrying the step's
// idempotency token, so a crash between dispatch and persistence is
// recoverable by querying chain state instead of re-issuing the call.
type Executor struct {
	Ledger           Ledger
	Chain            chain.Client
	TokenContractID  string
	MarketContractID string
	GasLimit         int64
	StepTimeout      time.Duration
}

// Outcome is the executor's verdict on one step invocation.
type Outcome struct {
	Status models.AttemptOutcome
	TxRef  string
	Err    error
}

func (o Outcome) Success() bool { return o.Status == models.AttemptSuccess }

// RunStep executes the given step for an order. A SUCCESS attempt on record
// short-circuits without a chain call; a PENDING or UNKNOWN attempt is
// reconciled against the chain first and only re-dispatched (with the same
// token) once reconciliation shows the earlier call never landed.
func (e *Executor) RunStep(ctx context.Context, order *models.Order, wallet *models.Wallet, step models.SettlementStep) (Outcome, error) {
	latest, err := e.Ledger.LatestAttempt(ctx, order.OrderID, step)
	if err != nil {
		return Outcome{}, err
	}

	token := uuid.NewString()
	if latest != nil {
		// The token is stable across retries of a step so the chain can
		// deduplicate a re-issued call.
		token = latest.IdempotencyToken

		switch latest.Outcome {
		case models.AttemptSuccess:
			return Outcome{Status: models.AttemptSuccess, TxRef: deref(latest.TxRef)}, nil
		case models.AttemptPending, models.AttemptUnknown:
			resolved, err := e.Reconcile(ctx, latest)
			if err != nil {
				return Outcome{Status: models.AttemptUnknown, Err: err}, nil
			}
			if resolved.Status != models.AttemptFailed || chain.IsFatal(resolved.Err) {
				// A committed tx resolves the step. A rejected tx is the
				// contract's verdict and must never be re-issued.
				return resolved, nil
			}
			// The earlier call never landed; fall through to a fresh dispatch.
		}
	}

	attempt := &models.SettlementAttempt{
		OrderID:          order.OrderID,
		Step:             step,
		IdempotencyToken: token,
		Outcome:          models.AttemptPending,
	}
	if err := e.Ledger.InsertAttempt(ctx, attempt); err != nil {
		return Outcome{}, err
	}

	if err := e.preflight(ctx, order, wallet, step); err != nil {
		if uerr := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptFailed, nil); uerr != nil {
			return Outcome{}, uerr
		}
		return Outcome{Status: models.AttemptFailed, Err: err}, nil
	}

	callCtx := ctx
	if e.StepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		defer cancel()
	}

	receipt, callErr := e.Chain.ExecuteContract(callCtx, e.buildRequest(order, wallet, step, token))
	switch {
	case callErr == nil:
		txRef := receipt.TxHash
		if err := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptSuccess, &txRef); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: models.AttemptSuccess, TxRef: txRef}, nil
	case chain.IsUnknown(callErr):
		if err := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptUnknown, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: models.AttemptUnknown, Err: callErr}, nil
	default:
		if err := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptFailed, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: models.AttemptFailed, Err: callErr}, nil
	}
}

// Reconcile resolves a pending or unknown attempt by querying the chain for
// the transaction carrying its idempotency token. It never dispatches.
func (e *Executor) Reconcile(ctx context.Context, attempt *models.SettlementAttempt) (Outcome, error) {
	tx, err := e.Chain.FindTransaction(ctx, attempt.IdempotencyToken)
	if err != nil {
		return Outcome{}, err
	}
	if tx == nil {
		// No trace on chain: the call never landed and may be re-issued.
		if err := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptFailed, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: models.AttemptFailed, Err: errors.New("call never landed")}, nil
	}
	if tx.Committed() {
		txRef := tx.Hash
		if err := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptSuccess, &txRef); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: models.AttemptSuccess, TxRef: txRef}, nil
	}
	txRef := tx.Hash
	if err := e.Ledger.UpdateAttemptOutcome(ctx, attempt.ID, models.AttemptFailed, &txRef); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Status: models.AttemptFailed,
		TxRef:  txRef,
		Err:    chain.Fatal("reconcile", fmt.Errorf("tx %s rejected with code %d", tx.Hash, tx.Code)),
	}, nil
}

func (e *Executor) preflight(ctx context.Context, order *models.Order, wallet *models.Wallet, step models.SettlementStep) error {
	switch step {
	case models.StepTransfer:
		balance, err := e.Chain.GetBalance(ctx, wallet.AccountID)
		if err != nil {
			return err
		}
		if compareAmount(balance, strconv.FormatInt(order.Total, 10)) < 0 {
			return chain.Fatal("preflight", fmt.Errorf("insufficient balance: have %s, need %d", balance, order.Total))
		}
		return nil
	case models.StepApprove:
		return e.requireSuccess(ctx, order.OrderID, models.StepTransfer)
	case models.StepPlaceOrder:
		return e.requireSuccess(ctx, order.OrderID, models.StepApprove)
	}
	return chain.Fatal("preflight", fmt.Errorf("unknown step %q", step))
}

func (e *Executor) requireSuccess(ctx context.Context, orderID string, prior models.SettlementStep) error {
	attempt, err := e.Ledger.LatestAttempt(ctx, orderID, prior)
	if err != nil {
		return err
	}
	if attempt == nil || attempt.Outcome != models.AttemptSuccess {
		return chain.Fatal("preflight", fmt.Errorf("step %s has no successful attempt", prior))
	}
	return nil
}

func (e *Executor) buildRequest(order *models.Order, wallet *models.Wallet, step models.SettlementStep, token string) chain.ExecuteRequest {
	req := chain.ExecuteRequest{
		AccountID:        wallet.AccountID,
		Credential:       wallet.Credential,
		GasLimit:         e.GasLimit,
		IdempotencyToken: token,
	}
	switch step {
	case models.StepTransfer:
		req.ContractID = e.TokenContractID
		req.Function = "transfer"
		req.Params = map[string]any{
			"recipient": order.EscrowAddress,
			"amount":    strconv.FormatInt(order.Total, 10),
		}
	case models.StepApprove:
		req.ContractID = e.TokenContractID
		req.Function = "approve"
		req.Params = map[string]any{
			"spender": e.MarketContractID,
			"amount":  strconv.FormatInt(order.Total, 10),
		}
	case models.StepPlaceOrder:
		req.ContractID = e.MarketContractID
		req.Function = "place_order"
		req.Params = map[string]any{
			"order_id": order.OrderID,
			"escrow":   order.EscrowAddress,
			"amount":   strconv.FormatInt(order.Total, 10),
		}
	}
	return req
}

// compareAmount compares two decimal amount strings without float math.
func compareAmount(a, b string) int {
	ai, ok1 := new(big.Int).SetString(a, 10)
	bi, ok2 := new(big.Int).SetString(b, 10)
	if !ok1 || !ok2 {
		return 0
	}
	return ai.Cmp(bi)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
