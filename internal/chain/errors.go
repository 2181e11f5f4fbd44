package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a failed gateway call for the saga's retry policy.
type ErrorKind string

const (
	// KindRetryable covers transport failures and gateway 5xx responses
	// where the call is known not to have reached the chain.
	KindRetryable ErrorKind = "retryable"
	// KindFatal covers contract rejections and other definitive refusals.
	KindFatal ErrorKind = "fatal"
	// KindUnknown covers timeouts on a dispatched call: the tx may or may
	// not have landed, so the outcome must be reconciled before any retry.
	KindUnknown ErrorKind = "unknown"
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chain %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Retryable(op string, err error) error {
	return &Error{Kind: KindRetryable, Op: op, Err: err}
}

func Fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

func Unknown(op string, err error) error {
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRetryable
}

func IsFatal(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindFatal
}

func IsUnknown(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUnknown
}

// classifyTransport maps a transport-level error from a dispatched request.
// Deadline expiry means the request may have been accepted before the
// connection died, so dispatched calls report unknown rather than retryable.
func classifyTransport(op string, err error, dispatched bool) error {
	if dispatched {
		if errors.Is(err, context.DeadlineExceeded) {
			return Unknown(op, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Unknown(op, err)
		}
	}
	return Retryable(op, err)
}
