package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrKindTimeout           ErrorKind = "timeout"
	ErrKindRateLimited       ErrorKind = "rate_limited"
	ErrKindMalformedResponse ErrorKind = "malformed_response"
	ErrKindAuth              ErrorKind = "auth"
	ErrKindUnknown           ErrorKind = "unknown"
)

// ProviderError wraps a provider failure with its kind and whether a retry of
// the same request may succeed. Providers never retry themselves; retry policy
// belongs to the caller.
type ProviderError struct {
	Kind      ErrorKind
	Retriable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provider error (%s)", e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(kind ErrorKind, retriable bool, err error) *ProviderError {
	return &ProviderError{Kind: kind, Retriable: retriable, Err: err}
}

// ClassifyStatus maps an HTTP status from a provider into a ProviderError.
func ClassifyStatus(status int, body string) *ProviderError {
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrKindAuth, false, err)
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrKindRateLimited, true, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewProviderError(ErrKindTimeout, true, err)
	case status >= 500:
		return NewProviderError(ErrKindUnknown, true, err)
	default:
		return NewProviderError(ErrKindUnknown, false, err)
	}
}

// ClassifyTransport maps a transport-level failure (connection, context).
func ClassifyTransport(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrKindTimeout, true, err)
	}
	if errors.Is(err, context.Canceled) {
		// Caller went away; not retriable from its point of view.
		return NewProviderError(ErrKindUnknown, false, err)
	}
	return NewProviderError(ErrKindUnknown, true, err)
}
