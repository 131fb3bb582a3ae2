package authsession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned across the SDK.
var (
	// ErrMalformedCredential indicates the access value does not split
	// into three dot-delimited segments or a segment failed structured
	// decoding. Fatal to the calling operation, never retried.
	ErrMalformedCredential = errors.New("authsession: malformed credential")

	// ErrStorageUnavailable indicates the selected storage medium is not
	// usable. Callers fall back to a volatile store rather than crash.
	ErrStorageUnavailable = errors.New("authsession: storage unavailable")

	// ErrSubscriberLimit indicates a subscriber or callback cap was
	// reached. Non-fatal: the registration becomes a no-op.
	ErrSubscriberLimit = errors.New("authsession: subscriber limit reached")

	// ErrNoCredential indicates no current credential exists.
	ErrNoCredential = errors.New("authsession: no current credential")

	// ErrNoRenewalValue indicates renewal was requested but neither the
	// caller nor the current credential supplied a renewal value.
	ErrNoRenewalValue = errors.New("authsession: credential has no renewal value")
)

// ValidationCode is a stable machine-readable reason for a validation
// failure. Codes are deterministic: rules are evaluated in a fixed order,
// so repeated validation of the same input yields the same code.
type ValidationCode string

const (
	CodeMalformed           ValidationCode = "malformed"
	CodeExpired             ValidationCode = "expired"
	CodeNotYetValid         ValidationCode = "not_yet_valid"
	CodeIssuerMismatch      ValidationCode = "issuer_mismatch"
	CodeAudienceMismatch    ValidationCode = "audience_mismatch"
	CodeSubjectMismatch     ValidationCode = "subject_mismatch"
	CodeAlgorithmNotAllowed ValidationCode = "algorithm_not_allowed"
)

// ValidationError reports the first validation rule that failed.
// The caller must treat the credential as unauthenticated.
type ValidationError struct {
	Code   ValidationCode
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("authsession: validation failed (%s): %s", e.Code, e.Reason)
}

// RenewalError reports that a renewal attempt gave up: either the retry
// budget was exhausted (Transient) or the backend rejected the renewal
// value outright. The caller is expected to clear the session and prompt
// re-authentication.
type RenewalError struct {
	// Transient is true when the failure was retried and the budget ran
	// out, false when the backend rejected the request permanently.
	Transient bool

	// Attempts is the number of renewal requests actually issued.
	Attempts int

	Err error
}

func (e *RenewalError) Error() string {
	if e.Transient {
		return fmt.Sprintf("authsession: renewal failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("authsession: renewal rejected: %v", e.Err)
}

func (e *RenewalError) Unwrap() error { return e.Err }

// BackendError is an HTTP-level failure from the renewal endpoint.
// Status code zero means the request never produced a response.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return "authsession: renewal endpoint unreachable"
	}
	return fmt.Sprintf("authsession: renewal endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is eligible for retry: network
// failures, 5xx responses and 429 rate limits. Other 4xx responses mean
// the renewal value itself was rejected.
func (e *BackendError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient classifies a renewal error for retry purposes. Typed
// backend errors carry their own classification; context cancellation is
// never retried; anything else is assumed to be a network-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient()
	}
	return true
}
