// Package types contains shared types used across the narrator framework
package types

import (
	"time"
)

// StepStatus represents the possible outcomes of a single step
type StepStatus string

const (
	StepStatusPassed  StepStatus = "passed"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
	StepStatusPending StepStatus = "pending"
)

// String implements the Stringer interface for StepStatus
func (s StepStatus) String() string {
	return string(s)
}

// Attempted reports whether a step with this status was actually executed.
func (s StepStatus) Attempted() bool {
	return s == StepStatusPassed || s == StepStatusFailed
}

// StepResult captures the outcome of a single step within a run.
// A StepResult is never modified after it has been recorded.
type StepResult struct {
	Name      string
	Order     int // Explicit ordinal, 0 when the step was declared without one
	Position  int // Zero-based position in the executed sequence
	Status    StepStatus
	Error     error         // Set for failed steps and for skips caused by cancellation
	Artifact  string        // Reference to a captured diagnostic artifact, if any
	StartTime time.Time     // Zero for steps that were never attempted
	Duration  time.Duration // Zero for steps that were never attempted
}

// ErrorMessage returns the error text, or an empty string when there is none
func (s StepResult) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return s.Error.Error()
}
