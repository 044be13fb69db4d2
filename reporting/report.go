package reporting

import (
	"fmt"
	"maps"
	"time"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// ReportStats contains aggregated step statistics for a run
type ReportStats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Pending  int     `json:"pending"`
	PassRate float64 `json:"pass_rate"`
}

// ReportStep represents a single step in the report
type ReportStep struct {
	Position  int              `json:"position"`
	Name      string           `json:"name"`
	Order     int              `json:"order,omitempty"`
	Status    types.StepStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	Artifact  string           `json:"artifact,omitempty"`
	StartTime time.Time        `json:"start_time,omitzero"`
	Duration  time.Duration    `json:"duration_ns"`
}

// ReportData contains all the structured data needed for any report format
type ReportData struct {
	RunID        string            `json:"run_id"`
	Title        string            `json:"title"`
	Instance     string            `json:"instance,omitempty"`
	DisplayName  string            `json:"display_name"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Status       types.RunStatus   `json:"status"`
	SetupError   string            `json:"setup_error,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Duration     time.Duration     `json:"duration_ns"`
	DurationText string            `json:"-"`
	Stats        ReportStats       `json:"stats"`
	PassRateText string            `json:"-"`
	HasFailures  bool              `json:"-"`
	Steps        []ReportStep      `json:"steps"`
	FailedSteps  []ReportStep      `json:"-"`
}

// BuildReport creates the report data for a finalized run
func BuildReport(run *types.Run) *ReportData {
	report := &ReportData{
		RunID:       run.ID,
		Title:       run.Title,
		Instance:    run.Instance,
		DisplayName: run.DisplayName(),
		Parameters:  maps.Clone(run.Parameters),
		Status:      run.Status,
		StartTime:   run.StartTime,
		EndTime:     run.EndTime,
		Duration:    run.Duration(),
		Steps:       make([]ReportStep, 0, len(run.Steps)),
		FailedSteps: make([]ReportStep, 0),
	}
	if run.SetupError != nil {
		report.SetupError = run.SetupError.Error()
	}
	report.DurationText = formatDuration(report.Duration)

	for _, step := range run.Steps {
		item := ReportStep{
			Position:  step.Position,
			Name:      step.Name,
			Order:     step.Order,
			Status:    step.Status,
			Error:     step.ErrorMessage(),
			Artifact:  step.Artifact,
			StartTime: step.StartTime,
			Duration:  step.Duration,
		}
		report.Steps = append(report.Steps, item)
		if step.Status == types.StepStatusFailed {
			report.FailedSteps = append(report.FailedSteps, item)
		}
	}

	stats := run.Stats()
	report.Stats = ReportStats{
		Total:   stats.Total,
		Passed:  stats.Passed,
		Failed:  stats.Failed,
		Skipped: stats.Skipped,
		Pending: stats.Pending,
	}
	if stats.Total > 0 {
		report.Stats.PassRate = float64(stats.Passed) / float64(stats.Total) * 100
	}
	report.PassRateText = fmt.Sprintf("%.1f", report.Stats.PassRate)
	report.HasFailures = stats.Failed > 0 || run.SetupError != nil

	return report
}

// formatDuration renders durations the way every report does
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
