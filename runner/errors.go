package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulingInterrupted matches every SchedulingInterruptedError
	ErrSchedulingInterrupted = errors.New("scheduling interrupted")

	// ErrRecorderFinalized is returned when a finalized recorder is modified
	ErrRecorderFinalized = errors.New("outcome recorder already finalized")

	// ErrRecorderNotFinalized is returned when reading the run before finalization
	ErrRecorderNotFinalized = errors.New("outcome recorder not finalized")

	// ErrSchedulerNotReady is returned when a step scheduler is executed twice
	ErrSchedulerNotReady = errors.New("step scheduler is not ready")
)

// StepFailureError is the error recorded for a failed step. It never
// surfaces beyond the run; the run record carries it.
type StepFailureError struct {
	Step string
	Err  error
}

func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *StepFailureError) Unwrap() error {
	return e.Err
}

// NewStepFailureError creates a new StepFailureError
func NewStepFailureError(step string, err error) *StepFailureError {
	return &StepFailureError{Step: step, Err: err}
}

// IsStepFailure checks if the error is or wraps a StepFailureError
func IsStepFailure(err error) bool {
	var stepErr *StepFailureError
	return err != nil && errors.As(err, &stepErr)
}

// SchedulingInterruptedError is returned by the parallel scheduler when its
// caller cancelled the wait. It carries whatever had finished by then.
type SchedulingInterruptedError struct {
	Cause     error
	Completed int // Tasks that started and ran to an end
	Cancelled int // Tasks that never started
	Partial   *ScheduleResult
}

func (e *SchedulingInterruptedError) Error() string {
	return fmt.Sprintf("scheduling interrupted after %d completed tasks, %d cancelled: %v",
		e.Completed, e.Cancelled, e.Cause)
}

// Unwrap implements the errors.Unwrap interface
func (e *SchedulingInterruptedError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ErrSchedulingInterrupted
func (e *SchedulingInterruptedError) Is(target error) bool {
	return target == ErrSchedulingInterrupted
}

// NewSchedulingInterruptedError creates a new SchedulingInterruptedError
func NewSchedulingInterruptedError(cause error, partial *ScheduleResult) *SchedulingInterruptedError {
	e := &SchedulingInterruptedError{Cause: cause, Partial: partial}
	if partial != nil {
		e.Completed = partial.Completed
		e.Cancelled = partial.Cancelled
	}
	return e
}

// IsSchedulingInterrupted checks if the error is or wraps a SchedulingInterruptedError
func IsSchedulingInterrupted(err error) bool {
	return err != nil && errors.Is(err, ErrSchedulingInterrupted)
}
