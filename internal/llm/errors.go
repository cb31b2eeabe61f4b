package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrEmptyResponse means the vendor answered without any text.
	ErrEmptyResponse = errors.New("no text content in response")

	// ErrOutputBlocked means the vendor withheld the output, typically a
	// safety filter tripping on exercise content.
	ErrOutputBlocked = errors.New("output withheld by provider")
)

// ErrRateLimit is returned when a vendor answers 429. RetryAfter is zero
// when the vendor gave no hint.
type ErrRateLimit struct {
	Vendor     string
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	msg := "rate limited"
	if e.Vendor != "" {
		msg = e.Vendor + ": " + msg
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrProviderUnavailable covers every transport or vendor failure that is
// not a rate limit: outages, auth errors, rejected requests.
type ErrProviderUnavailable struct {
	Vendor string
	Status int
	Err    error
}

func (e *ErrProviderUnavailable) Error() string {
	name := "LLM provider"
	if e.Vendor != "" {
		name = e.Vendor
	}
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("%s unavailable (HTTP %d): %v", name, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s unavailable: %v", name, e.Err)
	}
	return name + " unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth another attempt later: rate
// limits and 5xx outages. Auth and request errors are not.
func IsTransient(err error) bool {
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return true
	}
	var un *ErrProviderUnavailable
	if errors.As(err, &un) {
		return un.Status == 0 || un.Status >= http.StatusInternalServerError
	}
	return false
}

// vendorError maps an HTTP status from a vendor SDK error onto the
// package's error types. status is zero when the failure happened before
// a response arrived.
func vendorError(vendor string, status int, retryAfter time.Duration, err error) error {
	if status == http.StatusTooManyRequests {
		return &ErrRateLimit{Vendor: vendor, RetryAfter: retryAfter, Err: err}
	}
	return &ErrProviderUnavailable{Vendor: vendor, Status: status, Err: err}
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
