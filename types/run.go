package types

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// RunStatus represents the overall outcome of a run
type RunStatus string

const (
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
	RunStatusAborted RunStatus = "aborted"
)

// String implements the Stringer interface for RunStatus
func (s RunStatus) String() string {
	return string(s)
}

// Run is the finalized record of one execution of an ordered step sequence.
// Values handed out by the recorder are copies; mutating them does not
// affect the recorder or any other consumer.
type Run struct {
	ID         string
	Title      string
	Instance   string            // Name of the parameter set, empty for unparameterized runs
	Parameters map[string]string // Parameter values for this instance
	Steps      []StepResult
	Status     RunStatus
	SetupError error // Error returned by the before hook, if any
	StartTime  time.Time
	EndTime    time.Time
}

// RunStats summarizes the step outcomes of a run
type RunStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Pending int
}

// Duration returns the wall clock time between the start and end markers
func (r *Run) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Stats counts the step results by status
func (r *Run) Stats() RunStats {
	stats := RunStats{Total: len(r.Steps)}
	for _, step := range r.Steps {
		switch step.Status {
		case StepStatusPassed:
			stats.Passed++
		case StepStatusFailed:
			stats.Failed++
		case StepStatusSkipped:
			stats.Skipped++
		case StepStatusPending:
			stats.Pending++
		}
	}
	return stats
}

// FirstFailure returns the first failed step, if any
func (r *Run) FirstFailure() (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Status == StepStatusFailed {
			return step, true
		}
	}
	return StepResult{}, false
}

// DisplayName returns the title, qualified by the instance name when present
func (r *Run) DisplayName() string {
	title := r.Title
	if title == "" {
		title = r.ID
	}
	if r.Instance == "" || strings.Contains(title, "["+r.Instance+"]") {
		return title
	}
	return fmt.Sprintf("%s [%s]", title, r.Instance)
}

// Clone returns a deep copy of the run
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Steps = make([]StepResult, len(r.Steps))
	copy(clone.Steps, r.Steps)
	if r.Parameters != nil {
		clone.Parameters = maps.Clone(r.Parameters)
	}
	return &clone
}

// String returns a one-line summary of the run
func (r *Run) String() string {
	stats := r.Stats()
	return fmt.Sprintf("%s: %s (%d steps: %d passed, %d failed, %d skipped, %d pending)",
		r.DisplayName(), r.Status, stats.Total, stats.Passed, stats.Failed, stats.Skipped, stats.Pending)
}

// DetermineRunStatus derives the overall status from the step results.
// Failures take precedence over skips; a run with no attempted steps is skipped.
func DetermineRunStatus(steps []StepResult) RunStatus {
	allSkipped := true
	anyFailed := false
	for _, step := range steps {
		if step.Status.Attempted() {
			allSkipped = false
		}
		if step.Status == StepStatusFailed {
			anyFailed = true
		}
	}
	if anyFailed {
		return RunStatusFailed
	}
	if allSkipped {
		return RunStatusSkipped
	}
	return RunStatusPassed
}
