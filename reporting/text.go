package reporting

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const TextReporterName = "text"

var _ Reporter = (*TextReporter)(nil)

// TextReporter writes a plain-text step table to <dir>/<runID>.log
type TextReporter struct {
	fileReporter
}

// NewTextReporter creates a new text reporter
func NewTextReporter() *TextReporter {
	return &TextReporter{}
}

func (r *TextReporter) Name() string {
	return TextReporterName
}

func (r *TextReporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	// The table is rendered with the console styles; log files get the plain text
	content := stripansi.Strip(FormatRunTable(BuildReport(run)))
	_, err := r.writeFile(run.ID+".log", []byte(content))
	return err
}

// FormatRunTable renders the steps of a run as a table styled by the run status
func FormatRunTable(report *ReportData) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("Run: %s (%s)", report.DisplayName, report.RunID))
	t.AppendHeader(table.Row{"#", "STEP", "ORDER", "DURATION", "STATUS", "DETAIL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "STEP", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "ORDER", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "DETAIL", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	if report.SetupError != "" {
		t.AppendRow(table.Row{"-", "(setup)", "", "", "FAILED", report.SetupError})
	}
	for _, step := range report.Steps {
		order := ""
		if step.Order > 0 {
			order = fmt.Sprint(step.Order)
		}
		duration := ""
		if step.Status.Attempted() {
			duration = formatDuration(step.Duration)
		}
		detail := step.Error
		if step.Artifact != "" {
			detail = strings.TrimSpace(detail + " [artifact: " + step.Artifact + "]")
		}
		t.AppendRow(table.Row{
			step.Position + 1,
			step.Name,
			order,
			duration,
			strings.ToUpper(step.Status.String()),
			detail,
		})
	}

	switch report.Status {
	case types.RunStatusFailed, types.RunStatusAborted:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.RunStatusSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case types.RunStatusPassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleDefault)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed, %d skipped, %d pending",
			report.Stats.Passed, report.Stats.Failed, report.Stats.Skipped, report.Stats.Pending),
		"",
		report.DurationText,
		strings.ToUpper(report.Status.String()),
		"",
	})

	t.Render()
	return buf.String()
}
