package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceUnavailable matches every error returned when a resource cannot be created
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrUnsupportedDriver is the cause used when no constructor is registered for a driver
	ErrUnsupportedDriver = errors.New("unsupported driver type")

	// ErrResourceReleased is returned by any call on a handle whose manager released it
	ErrResourceReleased = errors.New("resource already released")

	// ErrAlreadyAcquired is returned when acquiring twice without releasing in between
	ErrAlreadyAcquired = errors.New("resource already acquired")

	// ErrNotAcquired is returned when asking for the current resource before acquiring one
	ErrNotAcquired = errors.New("resource not acquired")
)

// ResourceUnavailableError reports that the automation backend could not start.
// It aborts a run before any step executes.
type ResourceUnavailableError struct {
	Driver DriverType
	Err    error
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("resource unavailable for driver %q: %v", e.Driver, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrResourceUnavailable
func (e *ResourceUnavailableError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// NewResourceUnavailableError creates a new ResourceUnavailableError
func NewResourceUnavailableError(driver DriverType, err error) *ResourceUnavailableError {
	return &ResourceUnavailableError{Driver: driver, Err: err}
}

// IsResourceUnavailable checks if the error is or wraps a ResourceUnavailableError
func IsResourceUnavailable(err error) bool {
	return err != nil && errors.Is(err, ErrResourceUnavailable)
}
