package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
	"github.com/ethereum-optimism/infra/op-narrator/resource"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// StepFunc is the body of a step. Returning an error fails the step.
type StepFunc func(ctx context.Context, h *Harness) error

// Step describes one unit of test logic within a run
type Step struct {
	Name string
	// Order is an explicit ordinal. Steps with Order > 0 run first, sorted by
	// ordinal; the rest follow in declaration order.
	Order int
	// Pending marks a step that is declared but must not be executed
	Pending bool
	Run     StepFunc
}

// Harness is what hooks and steps receive instead of discovering their
// collaborators themselves.
type Harness struct {
	Resource resource.Resource
	Pages    *resource.Pages
	Params   map[string]string
	Log      log.Logger

	recorder *OutcomeRecorder
}

// SetTitle changes the run title; valid until the run is finalized
func (h *Harness) SetTitle(title string) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.SetTitle(title); err != nil {
		h.Log.Warn("Ignoring late title", "title", title, "error", err)
	}
}

// Param returns a run parameter, or an empty string
func (h *Harness) Param(name string) string {
	return h.Params[name]
}

// SchedulerState is the state of a StepScheduler
type SchedulerState int

const (
	StateReady SchedulerState = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s SchedulerState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// OrderSteps returns the steps in execution order. Explicitly ordered steps
// come first, sorted by ordinal and stable on ties, followed by the unordered
// steps in declaration order.
func OrderSteps(steps []Step) []Step {
	ordered := make([]Step, 0, len(steps))
	var unordered []Step
	for _, s := range steps {
		if s.Order > 0 {
			ordered = append(ordered, s)
		} else {
			unordered = append(unordered, s)
		}
	}
	slices.SortStableFunc(ordered, func(a, b Step) int {
		return a.Order - b.Order
	})
	return append(ordered, unordered...)
}

// StepScheduler executes the steps of one run sequentially. After the first
// failure every remaining step is recorded as skipped without executing it.
type StepScheduler struct {
	tracker   *FailureTracker
	recorder  *OutcomeRecorder
	artifacts ArtifactStore
	log       log.Logger
	tracer    trace.Tracer
	state     SchedulerState
}

// NewStepScheduler creates a scheduler feeding the given tracker and recorder.
// artifacts may be nil, in which case no artifacts are captured.
func NewStepScheduler(tracker *FailureTracker, recorder *OutcomeRecorder, artifacts ArtifactStore, logger log.Logger) *StepScheduler {
	if tracker == nil || recorder == nil {
		panic("tracker and recorder cannot be nil")
	}
	return &StepScheduler{
		tracker:   tracker,
		recorder:  recorder,
		artifacts: artifacts,
		log:       logger.New("component", "step-scheduler", "run", recorder.ID()),
		tracer:    otel.Tracer(tracerName),
		state:     StateReady,
	}
}

// State returns the current state
func (s *StepScheduler) State() SchedulerState {
	return s.state
}

// Execute runs the steps and returns the terminal state. Step failures are
// recorded, never returned; the only error is calling Execute twice.
func (s *StepScheduler) Execute(ctx context.Context, h *Harness, steps []Step) (SchedulerState, error) {
	if s.state != StateReady {
		return s.state, ErrSchedulerNotReady
	}
	s.state = StateRunning

	var abortCause error
	for _, step := range OrderSteps(steps) {
		result := types.StepResult{Name: step.Name, Order: step.Order}

		if abortCause == nil && ctx.Err() != nil {
			abortCause = context.Cause(ctx)
			s.log.Warn("Run cancelled, skipping remaining steps", "step", step.Name, "cause", abortCause)
		}

		switch {
		case abortCause != nil:
			result.Status = types.StepStatusSkipped
			result.Error = abortCause
		case s.tracker.HasFailed():
			result.Status = types.StepStatusSkipped
		case step.Pending || step.Run == nil:
			result.Status = types.StepStatusPending
		default:
			s.runStep(ctx, h, step, &result)
		}

		metrics.RecordStep(s.recorder.Title(), result.Status)
		if err := s.recorder.Record(result); err != nil {
			// Only possible when the recorder was finalized underneath us
			s.log.Error("Failed to record step result", "step", step.Name, "error", err)
		}
	}

	if abortCause != nil {
		s.state = StateAborted
	} else {
		s.state = StateCompleted
	}
	return s.state, nil
}

func (s *StepScheduler) runStep(ctx context.Context, h *Harness, step Step, result *types.StepResult) {
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("step %s", step.Name))
	defer span.End()

	result.StartTime = time.Now()
	err := invokeStep(ctx, h, step)
	result.Duration = time.Since(result.StartTime)
	position := s.recorder.Len()

	if err == nil {
		result.Status = types.StepStatusPassed
		s.log.Debug("Step passed", "step", step.Name, "duration", result.Duration)
		return
	}

	result.Status = types.StepStatusFailed
	result.Error = NewStepFailureError(step.Name, err)
	s.tracker.RecordFailure()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log.Info("Step failed", "step", step.Name, "position", position, "error", err)

	if ref := s.captureArtifact(ctx, h, position, step.Name); ref != "" {
		result.Artifact = ref
		span.SetAttributes(attribute.String("artifact", ref))
	}
}

// invokeStep runs the step body, turning panics into errors
func invokeStep(ctx context.Context, h *Harness, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return step.Run(ctx, h)
}

// captureArtifact saves a snapshot of the resource when both the resource
// and the scheduler support it. Capture problems never change the outcome.
func (s *StepScheduler) captureArtifact(ctx context.Context, h *Harness, position int, step string) string {
	if s.artifacts == nil || h == nil || h.Resource == nil {
		return ""
	}
	snap, ok := h.Resource.(resource.Snapshotter)
	if !ok {
		return ""
	}
	data, ext, err := snap.Snapshot()
	if err != nil {
		if !errors.Is(err, resource.ErrResourceReleased) {
			s.log.Warn("Failed to capture artifact", "step", step, "error", err)
		}
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	ref, err := s.artifacts.Save(context.WithoutCancel(ctx), s.recorder.ID(), position, step, data, ext)
	if err != nil {
		s.log.Warn("Failed to save artifact", "step", step, "error", err)
		return ""
	}
	return ref
}
