package reporting

import (
	"context"
	"encoding/xml"
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const JUnitReporterName = "junit"

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	ID        string          `xml:"id,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	Props     []junitProperty `xml:"properties>property,omitempty"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

var _ Reporter = (*JUnitReporter)(nil)

// JUnitReporter writes a JUnit XML report with one testcase per step to
// <dir>/TEST-<runID>.xml
type JUnitReporter struct {
	fileReporter
}

// NewJUnitReporter creates a new JUnit reporter
func NewJUnitReporter() *JUnitReporter {
	return &JUnitReporter{}
}

func (r *JUnitReporter) Name() string {
	return JUnitReporterName
}

func (r *JUnitReporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	data, err := marshalJUnit(BuildReport(run))
	if err != nil {
		return err
	}
	_, err = r.writeFile("TEST-"+run.ID+".xml", data)
	return err
}

func marshalJUnit(report *ReportData) ([]byte, error) {
	suite := junitTestSuite{
		Name:      report.DisplayName,
		ID:        report.RunID,
		Tests:     report.Stats.Total,
		Failures:  report.Stats.Failed,
		Skipped:   report.Stats.Skipped + report.Stats.Pending,
		Time:      seconds(report.Duration.Seconds()),
		Timestamp: report.StartTime.UTC().Format("2006-01-02T15:04:05"),
	}
	for _, name := range slices.Sorted(maps.Keys(report.Parameters)) {
		suite.Props = append(suite.Props, junitProperty{Name: name, Value: report.Parameters[name]})
	}
	if report.SetupError != "" {
		suite.Failures++
		suite.Tests++
		suite.Cases = append(suite.Cases, junitTestCase{
			Name:      "(setup)",
			Classname: report.DisplayName,
			Time:      seconds(0),
			Failure:   &junitFailure{Message: "setup failed", Body: report.SetupError},
		})
	}

	for _, step := range report.Steps {
		tc := junitTestCase{
			Name:      step.Name,
			Classname: report.DisplayName,
			Time:      seconds(step.Duration.Seconds()),
		}
		switch step.Status {
		case types.StepStatusFailed:
			tc.Failure = &junitFailure{Message: "step failed", Body: step.Error}
		case types.StepStatusSkipped:
			tc.Skipped = &junitSkipped{Message: step.Error}
		case types.StepStatusPending:
			tc.Skipped = &junitSkipped{Message: "pending"}
		}
		suite.Cases = append(suite.Cases, tc)
	}

	out, err := xml.MarshalIndent(junitTestSuites{Suites: []junitTestSuite{suite}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal junit report: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
