package runner

// FailureTracker records whether any step of a run has failed. It is owned
// by a single run and only touched from the goroutine executing its steps.
type FailureTracker struct {
	failed bool
}

// NewFailureTracker creates a tracker in the not-failed state
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{}
}

// RecordFailure marks the run as failed. Once set, the flag never clears.
func (t *FailureTracker) RecordFailure() {
	t.failed = true
}

// HasFailed reports whether a failure has been recorded
func (t *FailureTracker) HasFailed() bool {
	return t.failed
}
