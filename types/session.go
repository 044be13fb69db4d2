package types

import (
	"fmt"
	"time"
)

// Session is every run produced by one pass over a plan
type Session struct {
	ID          string
	Plan        string
	Runs        []*Run
	Errors      []string // Runs that produced no record, e.g. because no resource was available
	Interrupted bool
	StartTime   time.Time
	EndTime     time.Time
}

// SessionStats counts the runs of a session by status
type SessionStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Aborted int
	Errored int
}

// Duration returns the wall clock time of the session
func (s *Session) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Stats counts the runs by status
func (s *Session) Stats() SessionStats {
	stats := SessionStats{Total: len(s.Runs) + len(s.Errors), Errored: len(s.Errors)}
	for _, r := range s.Runs {
		switch r.Status {
		case RunStatusPassed:
			stats.Passed++
		case RunStatusFailed:
			stats.Failed++
		case RunStatusSkipped:
			stats.Skipped++
		case RunStatusAborted:
			stats.Aborted++
		}
	}
	return stats
}

// Counts returns the number of runs per status
func (s *Session) Counts() map[RunStatus]int {
	stats := s.Stats()
	return map[RunStatus]int{
		RunStatusPassed:  stats.Passed,
		RunStatusFailed:  stats.Failed + stats.Errored,
		RunStatusSkipped: stats.Skipped,
		RunStatusAborted: stats.Aborted,
	}
}

// Status derives the overall outcome. An interrupted session is aborted;
// otherwise any failed or errored run fails it.
func (s *Session) Status() RunStatus {
	stats := s.Stats()
	switch {
	case s.Interrupted || stats.Aborted > 0:
		return RunStatusAborted
	case stats.Failed > 0 || stats.Errored > 0:
		return RunStatusFailed
	case stats.Passed == 0:
		return RunStatusSkipped
	default:
		return RunStatusPassed
	}
}

func (s *Session) String() string {
	stats := s.Stats()
	return fmt.Sprintf("Session %s: %s (%d runs: %d passed, %d failed, %d skipped, %d aborted, %d errored)",
		s.ID, s.Status(), stats.Total, stats.Passed, stats.Failed, stats.Skipped, stats.Aborted, stats.Errored)
}
