package narrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-narrator/exitcodes"
	"github.com/ethereum-optimism/infra/op-narrator/metrics"
	"github.com/ethereum-optimism/infra/op-narrator/plan"
	"github.com/ethereum-optimism/infra/op-narrator/reporting"
	"github.com/ethereum-optimism/infra/op-narrator/resource"
	"github.com/ethereum-optimism/infra/op-narrator/runner"
	"github.com/ethereum-optimism/infra/op-narrator/service"
	"github.com/ethereum-optimism/infra/op-narrator/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// narrator implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &narrator{}

// Option configures the narrator service
type Option func(*narrator)

// WithService starts the healthz and metrics servers together with the
// narrator. Runtime errors mark the service unhealthy.
func WithService(svc *service.Service) Option {
	return func(n *narrator) {
		n.service = svc
	}
}

// WithFormatter replaces the console session formatter
func WithFormatter(f SessionFormatter) Option {
	return func(n *narrator) {
		n.formatter = f
	}
}

// WithResourceFactory replaces the built-in driver registry
func WithResourceFactory(f resource.Factory) Option {
	return func(n *narrator) {
		n.factory = f
	}
}

// narrator executes every run of a plan, once or periodically.
type narrator struct {
	config      *Config
	version     string
	plan        *plan.Plan
	factory     resource.Factory
	coordinator *runner.Coordinator
	sinks       *sinks
	scheduler   SessionScheduler
	formatter   SessionFormatter
	metrics     MetricsReporter
	service     *service.Service

	mu      sync.Mutex
	session *types.Session

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts ...Option) (*narrator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating narrator with config",
		"plan", config.PlanFile,
		"driver", config.Driver,
		"reporters", config.Reporters,
		"parallelism", config.Parallelism,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	p, err := plan.Load(config.PlanFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	p, err = p.Select(config.Cases)
	if err != nil {
		return nil, fmt.Errorf("failed to select cases: %w", err)
	}

	n := &narrator{
		config:           config,
		version:          version,
		plan:             p,
		metrics:          NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.formatter == nil {
		n.formatter = NewConsoleSessionFormatter(config.Log, nil)
	}
	if n.factory == nil {
		registry := resource.NewDriverRegistry(resource.RegistryConfig{
			HTTPTimeout: config.HTTPTimeout,
			UserAgent:   config.UserAgent,
		})
		if !registry.Supports(config.Driver) {
			return nil, fmt.Errorf("unsupported driver %q, available: %v", config.Driver, registry.Drivers())
		}
		n.factory = registry
	}

	catalog, s, err := buildCatalog(ctx, config, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up reporters: %w", err)
	}
	n.sinks = s

	var coordOpts []runner.CoordinatorOption
	if config.IsolateReporters {
		coordOpts = append(coordOpts, runner.WithDispatcherOptions(reporting.WithIsolation()))
	}
	n.coordinator, err = runner.NewCoordinator(runner.Config{
		OutputDir:        config.OutputDir,
		Driver:           config.Driver,
		DefaultReporters: config.Reporters,
		Parallelism:      config.Parallelism,
		BaseURL:          config.BaseURL,
	}, n.factory, catalog, config.Log, coordOpts...)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	n.scheduler = NewDefaultSessionScheduler(config.RunInterval, config.RunOnce, config.Log)
	n.scheduler.RegisterCallback(n.runSession)

	config.Log.Info("narrator.New: loaded plan", "cases", len(p.Cases), "runs", p.RunCount())
	return n, nil
}

// Start runs the plan immediately and, in continuous mode, periodically.
// Start implements the cliapp.Lifecycle interface.
func (n *narrator) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			n.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if n.service != nil {
		n.service.Start(ctx)
	}

	if n.config.RunOnce {
		n.config.Log.Info("Starting op-narrator in run-once mode")
	} else {
		n.config.Log.Info("Starting op-narrator in continuous mode", "interval", n.config.RunInterval)
	}

	if err := n.scheduler.Start(ctx); err != nil {
		n.config.Log.Error("Runtime error running session", "error", err)
		return err
	}

	if n.config.RunOnce {
		n.config.Log.Info("Session completed, exiting (run-once mode)")

		if session := n.LastSession(); session != nil && session.Status() != types.RunStatusPassed && session.Status() != types.RunStatusSkipped {
			n.config.Log.Warn("Run-once session completed with failures, returning exit code 1")
			return NewTestFailureError(session.String())
		}

		go func() {
			n.shutdownCallback(nil)
		}()
		return nil
	}

	n.config.Log.Debug("op-narrator started successfully")
	return nil
}

// runSession executes every run of the plan once and reports the session
func (n *narrator) runSession(ctx context.Context) error {
	session := &types.Session{
		ID:        uuid.New().String(),
		Plan:      n.plan.Path(),
		StartTime: time.Now(),
	}
	logger := n.config.Log.New("session", session.ID)

	specs := n.plan.RunSpecs()
	tasks := make([]runner.Task, 0, len(specs))
	for _, spec := range specs {
		tasks = append(tasks, n.coordinator.Task(spec))
	}

	var ui runner.ProgressIndicator
	if n.config.ShowProgress {
		ui = runner.NewConsoleProgressIndicator(logger, n.config.ProgressInterval)
	}
	scheduler := runner.NewParallelScheduler(n.coordinator.Config().Parallelism, logger, ui)

	logger.Info("Running session", "runs", len(tasks))
	result, err := scheduler.Execute(ctx, tasks)
	if err != nil && !runner.IsSchedulingInterrupted(err) {
		return NewRuntimeError(err)
	}
	session.Interrupted = err != nil

	for _, res := range result.Results {
		switch {
		case res.Outcome != nil && res.Outcome.Run != nil:
			session.Runs = append(session.Runs, res.Outcome.Run)
			if res.Err != nil {
				logger.Warn("Reports incomplete", "run", res.Name, "error", res.Err)
				metrics.RecordErrorDetails("report-dispatch", res.Err)
			}
		case res.Started && res.Err != nil:
			session.Errors = append(session.Errors, fmt.Sprintf("%s: %v", res.Name, res.Err))
		}
	}
	session.EndTime = time.Now()

	n.mu.Lock()
	n.session = session
	n.mu.Unlock()

	if ferr := n.formatter.FormatSession(session); ferr != nil {
		logger.Warn("Failed to format session", "error", ferr)
	}
	n.metrics.ReportSession(session)
	logger.Info("Session completed", "status", session.Status(), "duration", session.Duration())

	if session.Interrupted {
		n.setHealthy(false)
		return NewRuntimeError(err)
	}
	if len(session.Errors) > 0 {
		n.setHealthy(false)
		return NewRuntimeError(fmt.Errorf("%d of %d runs could not execute", len(session.Errors), len(tasks)))
	}
	n.setHealthy(true)
	return nil
}

func (n *narrator) setHealthy(healthy bool) {
	if n.service != nil {
		n.service.Healthz.SetHealthy(healthy)
	}
}

// LastSession returns the most recently completed session
func (n *narrator) LastSession() *types.Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session
}

// Stop stops the op-narrator service.
// Stop implements the cliapp.Lifecycle interface.
func (n *narrator) Stop(ctx context.Context) error {
	n.config.Log.Info("Stopping op-narrator")

	var result error
	if err := n.scheduler.Stop(); err != nil {
		result = errors.Join(result, err)
	}
	if err := n.scheduler.WaitForShutdown(ctx); err != nil {
		result = errors.Join(result, err)
	}
	if err := n.sinks.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("closing reporters: %w", err))
	}
	if n.service != nil {
		n.service.Shutdown()
	}

	n.config.Log.Info("op-narrator stopped")
	return result
}

// Stopped returns true if the op-narrator service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (n *narrator) Stopped() bool {
	return n.scheduler.Stopped()
}

// WaitForShutdown blocks until the periodic session loop has terminated
func (n *narrator) WaitForShutdown(ctx context.Context) error {
	return n.scheduler.WaitForShutdown(ctx)
}
