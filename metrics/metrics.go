package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-narrator/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "narrator"
)

var (
	Debug                bool = true
	validStepResults          = []types.StepStatus{types.StepStatusPassed, types.StepStatusFailed, types.StepStatusSkipped, types.StepStatusPending}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	stepResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "step_results_total",
		Help:      "Count of recorded step results",
	}, []string{
		"run",
		"result",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of finalized runs",
	}, []string{
		"run",
		"result",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock duration of finalized runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{
		"run",
	})

	resourceAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "resource_acquisitions_total",
		Help:      "Count of resource acquisition attempts",
	}, []string{
		"driver",
		"result",
	})

	resourcesLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "resources_live",
		Help:      "Number of acquired and not yet released resources",
	}, []string{
		"driver",
	})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reports_total",
		Help:      "Count of report generation attempts",
	}, []string{
		"reporter",
		"result",
	})

	schedulerPendingTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "scheduler_pending_tasks",
		Help:      "Number of scheduled tasks that have not completed",
	})

	schedulerInterruptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "scheduler_interruptions_total",
		Help:      "Count of interrupted parallel schedules",
	})

	sessionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_results",
		Help:      "Number of runs of the last session, by result",
	}, []string{
		"plan",
		"result",
	})

	sessionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Duration of the last session",
	}, []string{
		"plan",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sessions_total",
		Help:      "Count of completed sessions",
	}, []string{
		"plan",
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordStep(run string, result types.StepStatus) {
	if !isValidStepResult(result) {
		log.Error("RecordStep - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "step_results_total",
			"run", run,
			"result", result)
	}
	stepResultsTotal.WithLabelValues(run, string(result)).Inc()
}

func RecordRun(run string, result types.RunStatus, duration time.Duration) {
	runsTotal.WithLabelValues(run, string(result)).Inc()
	runDuration.WithLabelValues(run).Observe(duration.Seconds())
}

func RecordResourceAcquire(driver string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		resourcesLive.WithLabelValues(driver).Inc()
	}
	resourceAcquisitionsTotal.WithLabelValues(driver, result).Inc()
}

func RecordResourceRelease(driver string) {
	resourcesLive.WithLabelValues(driver).Dec()
}

func RecordReport(reporter string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reportsTotal.WithLabelValues(reporter, result).Inc()
}

func SetPendingTasks(n int) {
	schedulerPendingTasks.Set(float64(n))
}

func RecordInterruption() {
	schedulerInterruptionsTotal.Inc()
}

// RecordSession records the outcome of one session: every run of a plan.
// counts maps run results to the number of runs with that result.
func RecordSession(plan string, result string, counts map[types.RunStatus]int, duration time.Duration) {
	if Debug {
		log.Debug("metric set",
			"m", "session_results",
			"plan", plan,
			"result", result,
			"duration", duration)
	}
	for _, status := range []types.RunStatus{types.RunStatusPassed, types.RunStatusFailed, types.RunStatusSkipped, types.RunStatusAborted} {
		sessionResults.WithLabelValues(plan, string(status)).Set(float64(counts[status]))
	}
	sessionDuration.WithLabelValues(plan).Set(duration.Seconds())
	sessionsTotal.WithLabelValues(plan, result).Inc()
}

func isValidStepResult(result types.StepStatus) bool {
	return slices.Contains(validStepResults, result)
}
