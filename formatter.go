package narrator

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// SessionFormatter is responsible for formatting and displaying session results
type SessionFormatter interface {
	FormatSession(session *types.Session) error
}

// ConsoleSessionFormatter renders a session as a table
type ConsoleSessionFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleSessionFormatter creates a formatter writing to out, or stdout when out is nil
func NewConsoleSessionFormatter(logger log.Logger, out io.Writer) *ConsoleSessionFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSessionFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatSession formats and displays the session results
func (f *ConsoleSessionFormatter) FormatSession(session *types.Session) error {
	f.logger.Debug("Printing session results", "session", session.ID)
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Narrator Results (%s)", formatDuration(session.Duration())))

	t.AppendHeader(table.Row{
		"Run", "Instance", "Duration", "Steps", "Passed", "Failed", "Skipped", "Pending", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Run", AutoMerge: true, WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Pending", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	totals := types.RunStats{}
	for _, run := range session.Runs {
		stats := run.Stats()
		totals.Total += stats.Total
		totals.Passed += stats.Passed
		totals.Failed += stats.Failed
		totals.Skipped += stats.Skipped
		totals.Pending += stats.Pending

		t.AppendRow(table.Row{
			run.Title,
			run.Instance,
			formatDuration(run.Duration()),
			stats.Total,
			stats.Passed,
			stats.Failed,
			stats.Skipped,
			stats.Pending,
			getResultString(run.Status),
			runErrorMessage(run),
		})
	}
	for _, msg := range session.Errors {
		t.AppendRow(table.Row{"-", "", "-", "-", "-", "-", "-", "-", getResultString(types.RunStatusFailed), extractKeyErrorMessage(msg)})
	}

	status := session.Status()
	switch status {
	case types.RunStatusPassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.RunStatusSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d runs", session.Stats().Total),
		formatDuration(session.Duration()),
		totals.Total,
		totals.Passed,
		totals.Failed,
		totals.Skipped,
		totals.Pending,
		getResultString(status),
		"",
	})

	t.Render()
	fmt.Fprintln(f.out, session.String())
	return nil
}

// runErrorMessage picks the message that explains why a run did not pass
func runErrorMessage(run *types.Run) string {
	if run.SetupError != nil {
		return extractKeyErrorMessage("setup: " + run.SetupError.Error())
	}
	if step, ok := run.FirstFailure(); ok {
		return extractKeyErrorMessage(step.Name + ": " + step.ErrorMessage())
	}
	return ""
}

// extractKeyErrorMessage keeps the assertion line when there is one, otherwise the first line
func extractKeyErrorMessage(msg string) string {
	if idx := strings.Index(msg, "assertion failed:"); idx != -1 {
		msg = msg[idx:]
	}
	if idx := strings.Index(msg, "\n"); idx != -1 {
		msg = msg[:idx]
	}
	if len(msg) > 80 {
		return msg[:77] + "..."
	}
	return msg
}

// getResultString returns a string representing the run result
func getResultString(status types.RunStatus) string {
	switch status {
	case types.RunStatusPassed:
		return "✓ pass"
	case types.RunStatusSkipped:
		return "- skip"
	case types.RunStatusAborted:
		return "! abort"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
