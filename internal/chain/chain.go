package chain

import (
	"context"
	"time"
)

// Client is the settlement gateway boundary. Calls are slow, may time out,
// and are only deduplicated on the chain side when the request carries an
// idempotency token.
type Client interface {
	ExecuteContract(ctx context.Context, req ExecuteRequest) (*Receipt, error)
	GetBalance(ctx context.Context, accountID string) (string, error)
	// FindTransaction looks up a committed transaction by the idempotency
	// token it was submitted with. Returns nil when no such tx landed.
	FindTransaction(ctx context.Context, token string) (*Tx, error)
	LatestHeight(ctx context.Context) (int64, error)
}

type ExecuteRequest struct {
	AccountID        string
	Credential       string
	ContractID       string
	Function         string
	Params           map[string]any
	GasLimit         int64
	IdempotencyToken string
}

type Receipt struct {
	TxHash string
	Height int64
}

type Tx struct {
	Hash      string
	Height    int64
	Code      int
	Events    []Event
	Timestamp time.Time
}

// Committed reports whether the transaction executed without a contract error.
func (t *Tx) Committed() bool {
	return t != nil && t.Code == 0
}

type Event struct {
	Type       string
	Attributes []Attribute
}

type Attribute struct {
	Key   string
	Value string
}
