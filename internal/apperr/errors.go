// Package apperr defines the error classes shared by the session engine.
//
// Generation and validation failures are owned by the contentgen package
// because they never cross its boundary as errors the caller must handle;
// everything here is surfaced to callers.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotInitialized indicates a registry was read before it finished loading.
// It is a startup-ordering defect, never a transient condition.
var ErrNotInitialized = errors.New("registry not initialized")

// ErrAlreadyInitialized indicates a second Initialize call on a load-once registry.
var ErrAlreadyInitialized = errors.New("registry already initialized")

// ConfigurationError reports missing or inconsistent catalog/schema content.
// It is fatal for the operation and must not be retried.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
}

// Configf builds a ConfigurationError with a formatted reason.
func Configf(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// PersistenceError reports a failed session or event write. The in-memory
// session state is left intact so the write can be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
