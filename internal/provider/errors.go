package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Class is the normalized failure classification shared by every vendor
// adapter. The request executor's retry and fallback decisions depend on it;
// an adapter that misclassifies breaks retry behavior system-wide.
type Class string

const (
	ClassAuth             Class = "auth_error"
	ClassRateLimited      Class = "rate_limited"
	ClassTransientNetwork Class = "transient_network_error"
	ClassInvalidRequest   Class = "invalid_request"
	ClassUnavailable      Class = "provider_unavailable"
	ClassCancelled        Class = "cancelled"
)

// Retryable reports whether the same provider should be retried with backoff.
func (c Class) Retryable() bool {
	return c == ClassRateLimited || c == ClassTransientNetwork
}

// FallsBack reports whether the failure makes the provider a candidate for
// immediate fallback rather than same-provider retry.
func (c Class) FallsBack() bool {
	return c == ClassUnavailable
}

// Error is the classified failure returned by provider clients.
type Error struct {
	Class    Class
	Provider string
	Status   int
	Message  string

	// RetryAfter is a vendor-supplied hint for rate-limited responses; zero
	// when the vendor gave none.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Class, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Class, e.Message)
}

// ClassOf extracts the classification from an error chain, defaulting to
// transient for unclassified failures.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	return ClassTransientNetwork
}

// classifyStatus maps an HTTP status from a vendor API to a failure class.
func classifyStatus(status int) Class {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status == http.StatusBadRequest,
		status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnprocessableEntity:
		return ClassInvalidRequest
	case status >= 500:
		return ClassUnavailable
	default:
		return ClassTransientNetwork
	}
}

// statusError builds a classified error from a non-OK vendor response.
func statusError(providerName string, resp *http.Response, body []byte) *Error {
	e := &Error{
		Class:    classifyStatus(resp.StatusCode),
		Provider: providerName,
		Status:   resp.StatusCode,
		Message:  truncateBody(body),
	}
	if e.Class == ClassRateLimited {
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil && secs > 0 {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return e
}

// transportError classifies a failure that never produced a vendor response.
// Timeouts count as transient so the executor retries them; caller
// cancellation is kept distinct.
func transportError(ctx context.Context, providerName string, err error) *Error {
	class := ClassTransientNetwork
	if ctx.Err() == context.Canceled || errors.Is(err, context.Canceled) {
		class = ClassCancelled
	}
	return &Error{
		Class:    class,
		Provider: providerName,
		Message:  err.Error(),
	}
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
