package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrorUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"
	ErrorUpstreamTransport ErrorCode = "UPSTREAM_TRANSPORT"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error is a classified chat failure. Reply is safe to show to the customer;
// Err is the internal cause and must stay server-side.
type Error struct {
	Code   ErrorCode
	Reason string
	Reply  string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason, reply string, err error) *Error {
	return &Error{Code: code, Reason: reason, Reply: reply, Err: err}
}
