// Package resilience provides the provider error taxonomy and retry with
// exponential backoff used around external extraction calls.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"unicode/utf8"
)

// ProviderError is a failed extraction call, tagged retryable (transient:
// timeout, rate limit, 5xx, transport) or permanent (auth, malformed request).
// The retryable flag is fixed at construction.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status or provider error code; 0 when unknown
	Cause    error

	retryable bool
}

// NewRetryable creates a ProviderError eligible for another attempt.
func NewRetryable(provider, message string, code int, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, Code: code, Cause: cause, retryable: true}
}

// NewPermanent creates a ProviderError that must not be retried against the same provider.
func NewPermanent(provider, message string, code int, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, Code: code, Cause: cause}
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.retryable {
		kind = "retryable"
	}
	if e.Code != 0 {
		return fmt.Sprintf("provider %q %s error (code %d): %s", e.Provider, kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %q %s error: %s", e.Provider, kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient.
func (e *ProviderError) Retryable() bool {
	return e.retryable
}

// FromError converts an arbitrary failure into a ProviderError. An existing
// ProviderError in the chain is returned as is. Otherwise the original message
// and any status/code the error exposes are preserved, and the result is
// retryable.
func FromError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	return NewRetryable(provider, err.Error(), codeOf(err), err)
}

// FromHTTPStatus classifies a non-2xx provider response.
func FromHTTPStatus(provider string, statusCode int, body string) *ProviderError {
	msg := fmt.Sprintf("unexpected status %d: %s", statusCode, Truncate(body, 300))
	if IsPermanentHTTPStatus(statusCode) {
		return NewPermanent(provider, msg, statusCode, nil)
	}
	return NewRetryable(provider, msg, statusCode, nil)
}

// FromTransport classifies an error returned before any response arrived
// (dial, TLS, timeout, cancellation). Such failures are always retryable.
func FromTransport(provider string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRetryable(provider, "request timed out", 0, err)
	}
	return NewRetryable(provider, err.Error(), codeOf(err), err)
}

// IsRetryable reports whether err warrants another attempt. A ProviderError in
// the chain decides; otherwise the transient heuristics apply.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return IsTransient(err)
}

// IsTransient returns true if err matches common transient error patterns
// (deadline exceeded, network timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"rate limit",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// IsPermanentHTTPStatus returns true for client errors that will fail the same
// way on every attempt: bad request, auth, unknown model, validation.
func IsPermanentHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 400, 401, 403, 404, 405, 413, 422:
		return true
	default:
		return false
	}
}

// codeOf extracts a status or error code from errors that expose one.
func codeOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	var c interface{ Code() int }
	if errors.As(err, &c) {
		return c.Code()
	}
	return 0
}

// Truncate trims s and cuts it to at most n bytes plus an ellipsis, without
// splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := max(n, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
