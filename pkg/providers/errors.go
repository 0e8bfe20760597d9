package providers

import (
	"fmt"
	"time"
)

// UpstreamError is a non-2xx response from an upstream provider API.
type UpstreamError struct {
	// Provider is the provider id the request was sent for.
	Provider string

	// StatusCode is the upstream HTTP status.
	StatusCode int

	// Body is the upstream error body, kept for error translation.
	Body []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %q upstream error (status %d)", e.Provider, e.StatusCode)
}

// AuthError is an upstream rejection of the request's credentials.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError is an upstream 429, carrying the Retry-After hint when
// the provider sent one.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Body       []byte
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %q rate limit exceeded", e.Provider)
}

// TransportError is a failure reaching the upstream at all: connect
// refusal, TLS failure, or timeout.
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %q request failed: %v", e.Provider, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// GateRefusedError reports a request refused by the provider's rate gate
// without waiting.
type GateRefusedError struct {
	Provider  string
	Remaining time.Duration
}

func (e *GateRefusedError) Error() string {
	return fmt.Sprintf("provider %q rate gated, retry in %s", e.Provider, e.Remaining)
}
