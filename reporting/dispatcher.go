package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// DispatchOutcome is the result of handing a run to one registered reporter
type DispatchOutcome struct {
	Reporter  string
	Position  int
	Attempted bool // False when an earlier failure stopped the dispatch
	Err       error
	Duration  time.Duration
}

// Succeeded reports whether the reporter was invoked and wrote its report
func (o DispatchOutcome) Succeeded() bool {
	return o.Attempted && o.Err == nil
}

type registration struct {
	reporter  Reporter
	outputDir string
}

// Dispatcher invokes registered reporters in registration order. It belongs
// to a single run coordinator and is not safe for concurrent use.
type Dispatcher struct {
	log        log.Logger
	isolate    bool
	registered []registration
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithIsolation makes the dispatcher continue past failing reporters and
// return every failure aggregated, instead of stopping at the first one.
func WithIsolation() DispatcherOption {
	return func(d *Dispatcher) {
		d.isolate = true
	}
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger log.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{log: logger.New("component", "report-dispatcher")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a reporter writing to outputDir. Registering the same
// reporter twice makes it run twice.
func (d *Dispatcher) Register(reporter Reporter, outputDir string) {
	reporter.SetOutputDirectory(outputDir)
	d.registered = append(d.registered, registration{reporter: reporter, outputDir: outputDir})
}

// Reporters returns the registered reporters in registration order
func (d *Dispatcher) Reporters() []Reporter {
	reporters := make([]Reporter, len(d.registered))
	for i, reg := range d.registered {
		reporters[i] = reg.reporter
	}
	return reporters
}

// Isolated reports whether failures are isolated per reporter
func (d *Dispatcher) Isolated() bool {
	return d.isolate
}

// Dispatch hands the run to every registered reporter in order. The returned
// outcomes always cover every registration. A failure is reported as a
// ReportDispatchError naming the reporter; without isolation the remaining
// reporters are not invoked.
func (d *Dispatcher) Dispatch(ctx context.Context, run *types.Run) ([]DispatchOutcome, error) {
	if run == nil {
		return nil, errors.New("cannot dispatch a nil run")
	}

	outcomes := make([]DispatchOutcome, len(d.registered))
	for i, reg := range d.registered {
		outcomes[i] = DispatchOutcome{Reporter: reg.reporter.Name(), Position: i}
	}

	var result *multierror.Error
	for i, reg := range d.registered {
		// Output directories can be changed on the reporter after registration
		reg.reporter.SetOutputDirectory(reg.outputDir)

		start := time.Now()
		err := reg.reporter.GenerateReportFor(ctx, run)
		outcomes[i].Attempted = true
		outcomes[i].Duration = time.Since(start)
		metrics.RecordReport(reg.reporter.Name(), err)

		if err == nil {
			d.log.Debug("Report generated", "reporter", reg.reporter.Name(), "run", run.ID)
			continue
		}

		dispatchErr := NewReportDispatchError(reg.reporter.Name(), i, err)
		outcomes[i].Err = dispatchErr
		d.log.Error("Report generation failed", "reporter", reg.reporter.Name(), "run", run.ID, "error", err)

		if !d.isolate {
			return outcomes, dispatchErr
		}
		result = multierror.Append(result, dispatchErr)
	}

	return outcomes, result.ErrorOrNil()
}
