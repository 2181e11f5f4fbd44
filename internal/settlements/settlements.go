package settlements

import (
	"context"

	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/models"
)

// Settlement is one contract execution observed on chain, keyed by the
// idempotency token the executor submitted it with.
type Settlement struct {
	Token    string
	Contract string
	Function string
}

// ExtractSettlements pulls settlement executions out of a transaction's
// event list. Events without an idempotency token are not ours.
func ExtractSettlements(events []chain.Event) []Settlement {
	var out []Settlement
	for _, ev := range events {
		if ev.Type != "settlement" && ev.Type != "execute" {
			continue
		}
		var s Settlement
		for _, attr := range ev.Attributes {
			switch attr.Key {
			case "idempotency_token":
				s.Token = attr.Value
			case "contract":
				s.Contract = attr.Value
			case "function":
				s.Function = attr.Value
			}
		}
		if s.Token != "" {
			out = append(out, s)
		}
	}
	return out
}

// AttemptResolver is the slice of the store the watcher writes through.
type AttemptResolver interface {
	ResolveAttemptByToken(ctx context.Context, token string, outcome models.AttemptOutcome, txRef *string) (int64, error)
}

// ApplySettlement resolves any pending or unknown attempt matching the
// token against the observed transaction. Returns how many attempts moved.
func ApplySettlement(ctx context.Context, st AttemptResolver, tx *chain.Tx, s Settlement) (int64, error) {
	outcome := models.AttemptSuccess
	if !tx.Committed() {
		outcome = models.AttemptFailed
	}
	var txRef *string
	if tx.Hash != "" {
		txRef = &tx.Hash
	}
	return st.ResolveAttemptByToken(ctx, s.Token, outcome, txRef)
}
