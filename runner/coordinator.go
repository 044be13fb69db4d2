package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
	"github.com/ethereum-optimism/infra/op-narrator/reporting"
	"github.com/ethereum-optimism/infra/op-narrator/resource"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// Config is the configuration of one top-level invocation
type Config struct {
	OutputDir        string              // Where reports are written
	Driver           resource.DriverType // Which resource backend to use
	DefaultReporters []string            // Reporter names every run starts with
	Parallelism      int                 // Worker-pool size of the parallel scheduler
	BaseURL          string              // Overrides the base URL of every run when set
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Driver == "" {
		return errors.New("driver is required")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative: %d", c.Parallelism)
	}
	return nil
}

// HookFunc runs before or after the steps of a run
type HookFunc func(ctx context.Context, h *Harness) error

// RunSpec describes one run submitted to a Coordinator
type RunSpec struct {
	Title      string
	Instance   string
	Parameters map[string]string
	BaseURL    string // Default base URL of the run's Pages helper
	Before     HookFunc
	Steps      []Step
	After      HookFunc
}

// RunOutcome is the finalized run plus what happened to each reporter
type RunOutcome struct {
	Run      *types.Run
	Dispatch []reporting.DispatchOutcome
}

// Coordinator wires resource management, step execution, recording and
// report dispatch together for a run. Run may be called concurrently; every
// call builds its own collaborators.
type Coordinator struct {
	cfg       Config
	factory   resource.Factory
	catalog   *reporting.Catalog
	log       log.Logger
	tracer    trace.Tracer
	artifacts ArtifactStore
	dispatch  []reporting.DispatcherOption

	mu         sync.Mutex
	subscribed []reporting.Reporter
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithArtifactStore replaces the default artifact store. A nil store disables artifact capture.
func WithArtifactStore(store ArtifactStore) CoordinatorOption {
	return func(c *Coordinator) {
		c.artifacts = store
	}
}

// WithDispatcherOptions passes options to every run's dispatcher
func WithDispatcherOptions(opts ...reporting.DispatcherOption) CoordinatorOption {
	return func(c *Coordinator) {
		c.dispatch = append(c.dispatch, opts...)
	}
}

// WithTracer replaces the global tracer
func WithTracer(tracer trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// NewCoordinator creates a coordinator. Every default reporter must be known to the catalog.
func NewCoordinator(cfg Config, factory resource.Factory, catalog *reporting.Catalog, logger log.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if factory == nil {
		return nil, errors.New("resource factory is required")
	}
	if catalog == nil {
		catalog = reporting.NewCatalog()
	}
	for _, name := range cfg.DefaultReporters {
		if !catalog.Has(name) {
			return nil, fmt.Errorf("unknown default reporter %q", name)
		}
	}

	c := &Coordinator{
		cfg:     cfg,
		factory: factory,
		catalog: catalog,
		log:     logger.New("component", "coordinator"),
		tracer:  otel.Tracer(tracerName),
	}
	if cfg.OutputDir != "" {
		c.artifacts = NewFileArtifactStore(filepath.Join(cfg.OutputDir, ArtifactsDirName))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the coordinator configuration
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Subscribe adds reporters to every subsequent run, after the default ones.
// Subscribed reporters are shared by concurrent runs.
func (c *Coordinator) Subscribe(reporters ...reporting.Reporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, reporters...)
}

// newDispatcher builds the dispatcher of one run: fresh default reporters
// followed by the subscribed ones.
func (c *Coordinator) newDispatcher(logger log.Logger) (*reporting.Dispatcher, error) {
	defaults, err := c.catalog.Build(c.cfg.DefaultReporters)
	if err != nil {
		return nil, err
	}
	d := reporting.NewDispatcher(logger, c.dispatch...)
	for _, r := range defaults {
		d.Register(r, c.cfg.OutputDir)
	}
	c.mu.Lock()
	for _, r := range c.subscribed {
		d.Register(r, c.cfg.OutputDir)
	}
	c.mu.Unlock()
	return d, nil
}

// Run executes one run end to end: acquire the resource, run the before
// hook, the steps and the after hook, release the resource, finalize the
// record and dispatch it to the reporters.
//
// A resource that cannot be acquired aborts the run with a
// ResourceUnavailableError before any step runs and before any report is
// written. Step failures are part of the returned run; a reporter failure
// is returned together with the outcome.
func (c *Coordinator) Run(ctx context.Context, spec RunSpec) (*RunOutcome, error) {
	runID := uuid.New().String()
	logger := c.log.New("run", runID, "title", spec.Title, "instance", spec.Instance)

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("run %s", spec.Title))
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.instance", spec.Instance),
		attribute.Int("run.steps", len(spec.Steps)),
	)

	dispatcher, err := c.newDispatcher(logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("building reporters: %w", err)
	}

	recorder := NewOutcomeRecorder(runID, spec.Title, spec.Instance, spec.Parameters)
	manager := resource.NewManager(c.factory, c.cfg.Driver, logger)

	res, err := manager.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resource unavailable")
		metrics.RecordErrorDetails("resource-unavailable", err)
		return nil, err
	}

	state := c.execute(ctx, logger, manager, res, recorder, spec)

	run, err := recorder.Finalize(state)
	if err != nil {
		return nil, fmt.Errorf("finalizing run: %w", err)
	}
	metrics.RecordRun(run.DisplayName(), run.Status, run.Duration())
	span.SetAttributes(attribute.String("run.status", run.Status.String()))
	if run.Status == types.RunStatusFailed || run.Status == types.RunStatusAborted {
		span.SetStatus(codes.Error, run.Status.String())
	}
	logger.Info("Run finished", "status", run.Status, "duration", run.Duration())

	// Interrupted runs still get reported
	outcomes, err := dispatcher.Dispatch(context.WithoutCancel(ctx), run)
	if err != nil {
		span.RecordError(err)
	}
	return &RunOutcome{Run: run, Dispatch: outcomes}, err
}

// Task wraps a run so it can be submitted to a ParallelScheduler
func (c *Coordinator) Task(spec RunSpec) Task {
	name := spec.Title
	if spec.Instance != "" {
		name = fmt.Sprintf("%s [%s]", spec.Title, spec.Instance)
	}
	return Task{
		ID:   uuid.New().String(),
		Name: name,
		Run: func(ctx context.Context) (*RunOutcome, error) {
			return c.Run(ctx, spec)
		},
	}
}

// execute runs hooks and steps against an acquired resource. The resource
// is released on every exit path.
func (c *Coordinator) execute(ctx context.Context, logger log.Logger, manager *resource.Manager, res resource.Resource, recorder *OutcomeRecorder, spec RunSpec) SchedulerState {
	defer func() {
		if err := manager.Release(); err != nil {
			logger.Warn("Failed to release resource", "error", err)
		}
	}()

	pages := resource.NewPages(res, spec.BaseURL)
	if c.cfg.BaseURL != "" {
		pages.OverrideBaseURL(c.cfg.BaseURL)
	}
	harness := &Harness{
		Resource: res,
		Pages:    pages,
		Params:   spec.Parameters,
		Log:      logger,
		recorder: recorder,
	}
	tracker := NewFailureTracker()

	if spec.Before != nil {
		if err := invokeHook(ctx, harness, spec.Before); err != nil {
			logger.Error("Before hook failed, skipping all steps", "error", err)
			_ = recorder.SetSetupError(err)
			tracker.RecordFailure()
		}
	}

	scheduler := NewStepScheduler(tracker, recorder, c.artifacts, logger)
	state, err := scheduler.Execute(ctx, harness, spec.Steps)
	if err != nil {
		// A fresh scheduler is always ready
		logger.Error("Step scheduler refused to run", "error", err)
	}

	if spec.After != nil {
		if err := invokeHook(ctx, harness, spec.After); err != nil {
			logger.Warn("After hook failed", "error", err)
		}
	}
	return state
}

// invokeHook runs a hook, turning panics into errors
func invokeHook(ctx context.Context, h *Harness, hook HookFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return hook(ctx, h)
}
