package runner

import (
	"maps"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// OutcomeRecorder accumulates the step results of exactly one run. The run
// record becomes readable once Finalize has been called and can no longer be
// modified afterwards.
type OutcomeRecorder struct {
	mu        sync.Mutex
	run       types.Run
	finalized *types.Run
}

// NewOutcomeRecorder creates a recorder for the run with the given identity
func NewOutcomeRecorder(id, title, instance string, params map[string]string) *OutcomeRecorder {
	return &OutcomeRecorder{
		run: types.Run{
			ID:         id,
			Title:      title,
			Instance:   instance,
			Parameters: maps.Clone(params),
			StartTime:  time.Now(),
		},
	}
}

// ID returns the run ID
func (r *OutcomeRecorder) ID() string {
	return r.run.ID
}

// Title returns the current title
func (r *OutcomeRecorder) Title() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.Title
}

// SetTitle replaces the run title. The last call before finalization wins.
func (r *OutcomeRecorder) SetTitle(title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized != nil {
		return ErrRecorderFinalized
	}
	r.run.Title = title
	return nil
}

// SetSetupError records the error of the run's before hook
func (r *OutcomeRecorder) SetSetupError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized != nil {
		return ErrRecorderFinalized
	}
	r.run.SetupError = err
	return nil
}

// Record appends a step result, assigning its position in the sequence
func (r *OutcomeRecorder) Record(result types.StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized != nil {
		return ErrRecorderFinalized
	}
	result.Position = len(r.run.Steps)
	r.run.Steps = append(r.run.Steps, result)
	return nil
}

// Len returns the number of recorded step results
func (r *OutcomeRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.run.Steps)
}

// Finalize derives the run status from the recorded steps and the final
// scheduler state, then freezes the record.
func (r *OutcomeRecorder) Finalize(state SchedulerState) (*types.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized != nil {
		return nil, ErrRecorderFinalized
	}

	r.run.EndTime = time.Now()
	switch {
	case state == StateAborted:
		r.run.Status = types.RunStatusAborted
	case r.run.SetupError != nil:
		r.run.Status = types.RunStatusFailed
	default:
		r.run.Status = types.DetermineRunStatus(r.run.Steps)
	}

	r.finalized = r.run.Clone()
	return r.finalized.Clone(), nil
}

// Finalized reports whether the record has been frozen
func (r *OutcomeRecorder) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized != nil
}

// Run returns a copy of the finalized run record
func (r *OutcomeRecorder) Run() (*types.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized == nil {
		return nil, ErrRecorderNotFinalized
	}
	return r.finalized.Clone(), nil
}
