package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	// Test with actual error
	RecordErrorDetails("test", errors.New("sample error"))
}

func TestRecordStep(t *testing.T) {
	before := testutil.ToFloat64(stepResultsTotal.WithLabelValues("metrics-test", "passed"))
	RecordStep("metrics-test", types.StepStatusPassed)
	RecordStep("metrics-test", types.StepStatus("bogus"))
	after := testutil.ToFloat64(stepResultsTotal.WithLabelValues("metrics-test", "passed"))
	assert.Equal(t, before+1, after)
}

func TestRecordRun(t *testing.T) {
	RecordRun("metrics-test", types.RunStatusPassed, time.Second)
	RecordRun("metrics-test", types.RunStatusFailed, 500*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(runsTotal.WithLabelValues("metrics-test", "failed")))
}

func TestResourceGauge(t *testing.T) {
	RecordResourceAcquire("metrics-driver", nil)
	RecordResourceAcquire("metrics-driver", errors.New("launch failed"))
	assert.Equal(t, float64(1), testutil.ToFloat64(resourcesLive.WithLabelValues("metrics-driver")))
	RecordResourceRelease("metrics-driver")
	assert.Equal(t, float64(0), testutil.ToFloat64(resourcesLive.WithLabelValues("metrics-driver")))
}

func TestRecordSession(t *testing.T) {
	counts := map[types.RunStatus]int{types.RunStatusPassed: 3, types.RunStatusFailed: 1}
	RecordSession("metrics-plan", "failed", counts, 2*time.Second)

	assert.Equal(t, float64(3), testutil.ToFloat64(sessionResults.WithLabelValues("metrics-plan", "passed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sessionResults.WithLabelValues("metrics-plan", "failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(sessionResults.WithLabelValues("metrics-plan", "aborted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(sessionDuration.WithLabelValues("metrics-plan")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sessionsTotal.WithLabelValues("metrics-plan", "failed")))
}
