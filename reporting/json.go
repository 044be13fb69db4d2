package reporting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const JSONReporterName = "json"

var _ Reporter = (*JSONReporter)(nil)

// JSONReporter writes <dir>/<runID>.json
type JSONReporter struct {
	fileReporter
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{}
}

func (r *JSONReporter) Name() string {
	return JSONReporterName
}

func (r *JSONReporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	data, err := marshalReport(run)
	if err != nil {
		return err
	}
	_, err = r.writeFile(run.ID+".json", data)
	return err
}

// marshalReport encodes the report data of a run as indented JSON
func marshalReport(run *types.Run) ([]byte, error) {
	data, err := json.MarshalIndent(BuildReport(run), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}
