package core

import (
	"errors"
	"fmt"
)

// ErrorClass is the normalized provider failure taxonomy.
type ErrorClass string

const (
	// ErrClassResolution marks targets that cannot be mapped to an endpoint.
	ErrClassResolution ErrorClass = "resolution"
	// ErrClassStubUnavailable marks stub requests with no sample payload.
	ErrClassStubUnavailable ErrorClass = "stub_unavailable"
	// ErrClassTransport marks network-layer failures from the collaborator.
	ErrClassTransport ErrorClass = "transport"
	// ErrClassCancelled marks cooperative cancellation. It is a terminal
	// signal, not a failure.
	ErrClassCancelled ErrorClass = "cancelled"
)

// Validate enforces supported error classes.
func (c ErrorClass) Validate() error {
	switch c {
	case ErrClassResolution, ErrClassStubUnavailable, ErrClassTransport, ErrClassCancelled:
		return nil
	default:
		return fmt.Errorf("unsupported error class: %q", c)
	}
}

// ErrStubUnavailable is returned when a stubbed target declares no sample.
var ErrStubUnavailable = errors.New("target declares no sample payload")

// ProviderError is the unified error surfaced by the provider. It preserves
// the underlying cause for errors.Is/As inspection.
type ProviderError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewError wraps cause in the provider taxonomy. A cause that is already a
// ProviderError is returned unchanged so the original class survives fan-out.
func NewError(class ErrorClass, op string, cause error) *ProviderError {
	var pe *ProviderError
	if errors.As(cause, &pe) {
		return pe
	}
	return &ProviderError{Class: class, Op: op, Err: cause}
}

// ClassOf extracts the taxonomy class from err, defaulting to transport for
// unclassified failures.
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, ErrStubUnavailable) {
		return ErrClassStubUnavailable
	}
	return ErrClassTransport
}
