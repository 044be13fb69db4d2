package reporting

import (
	"errors"
	"fmt"
)

// ErrReportDispatch matches every ReportDispatchError
var ErrReportDispatch = errors.New("report dispatch failed")

// ReportDispatchError identifies the reporter that failed to write a report
type ReportDispatchError struct {
	Reporter string
	Position int // Registration index of the reporter
	Err      error
}

func (e *ReportDispatchError) Error() string {
	return fmt.Sprintf("failed to generate reports using %s (reporter #%d): %v", e.Reporter, e.Position, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ReportDispatchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrReportDispatch
func (e *ReportDispatchError) Is(target error) bool {
	return target == ErrReportDispatch
}

// NewReportDispatchError creates a new ReportDispatchError
func NewReportDispatchError(reporter string, position int, err error) *ReportDispatchError {
	return &ReportDispatchError{Reporter: reporter, Position: position, Err: err}
}

// IsReportDispatchError checks if the error is or wraps a ReportDispatchError
func IsReportDispatchError(err error) bool {
	return err != nil && errors.Is(err, ErrReportDispatch)
}
