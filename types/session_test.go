package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus(t *testing.T) {
	passed := &Run{Status: RunStatusPassed}
	failed := &Run{Status: RunStatusFailed}
	skipped := &Run{Status: RunStatusSkipped}
	aborted := &Run{Status: RunStatusAborted}

	tests := []struct {
		name    string
		session Session
		want    RunStatus
	}{
		{"empty", Session{}, RunStatusSkipped},
		{"all passed", Session{Runs: []*Run{passed, passed}}, RunStatusPassed},
		{"passed and skipped", Session{Runs: []*Run{passed, skipped}}, RunStatusPassed},
		{"only skipped", Session{Runs: []*Run{skipped}}, RunStatusSkipped},
		{"one failure", Session{Runs: []*Run{passed, failed}}, RunStatusFailed},
		{"errored run", Session{Runs: []*Run{passed}, Errors: []string{"resource unavailable"}}, RunStatusFailed},
		{"aborted run", Session{Runs: []*Run{failed, aborted}}, RunStatusAborted},
		{"interrupted", Session{Runs: []*Run{passed}, Interrupted: true}, RunStatusAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Status())
		})
	}
}

func TestSessionStats(t *testing.T) {
	start := time.Now()
	s := Session{
		ID: "s1",
		Runs: []*Run{
			{Status: RunStatusPassed},
			{Status: RunStatusFailed},
			{Status: RunStatusSkipped},
		},
		Errors:    []string{"boom"},
		StartTime: start,
		EndTime:   start.Add(3 * time.Second),
	}
	assert.Equal(t, SessionStats{Total: 4, Passed: 1, Failed: 1, Skipped: 1, Errored: 1}, s.Stats())
	assert.Equal(t, 2, s.Counts()[RunStatusFailed])
	assert.Equal(t, 3*time.Second, s.Duration())
	assert.Equal(t, "Session s1: failed (4 runs: 1 passed, 1 failed, 1 skipped, 0 aborted, 1 errored)", s.String())
}
