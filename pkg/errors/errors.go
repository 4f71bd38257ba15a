// Package errors defines the gateway's error taxonomy as a tagged union.
//
// Every error the pipeline can produce is one of the Kind values below.
// Callers switch on Kind rather than inspecting message strings or
// sentinel types, and the HTTP surface maps Kind directly to a status
// code (see Kind.HTTPStatus).
package errors

import "fmt"

// Kind identifies a class of failure in the request lifecycle.
type Kind string

const (
	KindBadRequest           Kind = "bad_request"
	KindProviderNotConfigured Kind = "provider_not_configured"
	KindBudgetExceeded       Kind = "budget_exceeded"
	KindAuth                 Kind = "auth"
	KindUpstreamRateLimited  Kind = "upstream_rate_limited"
	KindUpstreamTransient    Kind = "upstream_transient"
	KindCancelled            Kind = "cancelled"
	KindPersistence          Kind = "persistence"
	KindInternal             Kind = "internal"
)

// HTTPStatus returns the status code the HTTP surface should use for
// this error kind. Cancelled always maps to 499; a cancellation caused
// by an elapsed deadline is not given a different status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return 400
	case KindProviderNotConfigured:
		return 503
	case KindBudgetExceeded:
		return 429
	case KindAuth:
		return 502
	case KindUpstreamRateLimited:
		return 429
	case KindUpstreamTransient:
		return 502
	case KindCancelled:
		return 499
	case KindPersistence:
		return 500
	case KindInternal:
		return 500
	default:
		return 500
	}
}

// Error is the single concrete error type for every Kind. Metadata
// carries kind-specific structured detail (provider, attempt, window,
// limit, spend, ...) consumed by the HTTP surface and by logging.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	Metadata map[string]any
	cause    error
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (provider=%s)", e.Kind, e.Message, e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithProvider returns a copy annotated with the originating provider.
func (e *Error) WithProvider(provider string) *Error {
	cp := *e
	cp.Provider = provider
	return &cp
}

// WithMetadata returns a copy with the given metadata merged in.
func (e *Error) WithMetadata(kv map[string]any) *Error {
	cp := *e
	merged := make(map[string]any, len(e.Metadata)+len(kv))
	for k, v := range e.Metadata {
		merged[k] = v
	}
	for k, v := range kv {
		merged[k] = v
	}
	cp.Metadata = merged
	return &cp
}

// Is reports whether err is a gateway error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// As extracts the gateway *Error from err, if any.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

func NewBadRequest(message string) *Error { return New(KindBadRequest, message) }

func NewProviderNotConfigured(model string) *Error {
	return New(KindProviderNotConfigured, "no enabled connection for model "+model)
}

func NewBudgetExceeded(window string, limit, spent float64) *Error {
	return New(KindBudgetExceeded, "budget exceeded").WithMetadata(map[string]any{
		"window": window, "limit": limit, "spent": spent,
	})
}

func NewAuth(provider, message string) *Error {
	return New(KindAuth, message).WithProvider(provider)
}

func NewUpstreamRateLimited(provider, message string) *Error {
	return New(KindUpstreamRateLimited, message).WithProvider(provider)
}

func NewUpstreamTransient(provider, message string) *Error {
	return New(KindUpstreamTransient, message).WithProvider(provider)
}

func NewCancelled(message string) *Error { return New(KindCancelled, message) }

func NewPersistence(cause error, message string) *Error {
	return Wrap(KindPersistence, cause, message)
}

func NewInternal(message string) *Error { return New(KindInternal, message) }

// Retryable reports whether the retry/fallback executor should retry
// the same provider (as opposed to breaking to the next one in chain).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUpstreamRateLimited, KindUpstreamTransient:
		return true
	default:
		return false
	}
}
