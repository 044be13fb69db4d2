package runner

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-narrator/resource"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// stepTrace records which steps actually executed
type stepTrace struct {
	executed []string
}

func (tr *stepTrace) pass(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context, h *Harness) error {
		tr.executed = append(tr.executed, name)
		return nil
	}}
}

func (tr *stepTrace) fail(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context, h *Harness) error {
		tr.executed = append(tr.executed, name)
		return errors.New("assertion failed: " + name)
	}}
}

func newScheduler(t *testing.T, artifacts ArtifactStore) (*StepScheduler, *OutcomeRecorder, *FailureTracker) {
	t.Helper()
	recorder := NewOutcomeRecorder("run-1", "steps", "", nil)
	tracker := NewFailureTracker()
	return NewStepScheduler(tracker, recorder, artifacts, testLogger()), recorder, tracker
}

func statuses(run *types.Run) []types.StepStatus {
	out := make([]types.StepStatus, len(run.Steps))
	for i, s := range run.Steps {
		out[i] = s.Status
	}
	return out
}

func TestStepScheduler_FailFast(t *testing.T) {
	tr := &stepTrace{}
	sched, recorder, tracker := newScheduler(t, nil)

	state, err := sched.Execute(context.Background(), &Harness{}, []Step{
		tr.pass("one"), tr.pass("two"), tr.fail("three"), tr.pass("four"), tr.pass("five"),
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.True(t, tracker.HasFailed())
	assert.Equal(t, []string{"one", "two", "three"}, tr.executed)

	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, []types.StepStatus{
		types.StepStatusPassed,
		types.StepStatusPassed,
		types.StepStatusFailed,
		types.StepStatusSkipped,
		types.StepStatusSkipped,
	}, statuses(run))
	assert.Equal(t, types.RunStatusFailed, run.Status)

	failed := run.Steps[2]
	assert.True(t, IsStepFailure(failed.Error))
	assert.Contains(t, failed.ErrorMessage(), "assertion failed: three")
	for _, skipped := range run.Steps[3:] {
		assert.Nil(t, skipped.Error)
		assert.True(t, skipped.StartTime.IsZero())
	}
	for i, s := range run.Steps {
		assert.Equal(t, i, s.Position)
	}
}

func TestStepScheduler_NoFailuresNoSkips(t *testing.T) {
	tr := &stepTrace{}
	sched, recorder, _ := newScheduler(t, nil)

	steps := []Step{tr.pass("a"), {Name: "later", Pending: true}, tr.pass("b"), {Name: "unimplemented"}}
	state, err := sched.Execute(context.Background(), &Harness{}, steps)
	require.NoError(t, err)

	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	require.Len(t, run.Steps, len(steps))
	assert.Equal(t, []types.StepStatus{
		types.StepStatusPassed,
		types.StepStatusPending,
		types.StepStatusPassed,
		types.StepStatusPending,
	}, statuses(run))
	assert.Zero(t, run.Stats().Skipped)
	assert.Equal(t, types.RunStatusPassed, run.Status)
}

func TestStepScheduler_PendingAfterFailureIsSkipped(t *testing.T) {
	tr := &stepTrace{}
	sched, recorder, _ := newScheduler(t, nil)

	state, err := sched.Execute(context.Background(), &Harness{}, []Step{
		tr.fail("a"), {Name: "pending", Pending: true},
	})
	require.NoError(t, err)
	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, []types.StepStatus{types.StepStatusFailed, types.StepStatusSkipped}, statuses(run))
}

func TestStepScheduler_ExplicitOrder(t *testing.T) {
	tr := &stepTrace{}
	sched, recorder, _ := newScheduler(t, nil)

	third := tr.pass("third")
	third.Order = 3
	first := tr.pass("first")
	first.Order = 1
	second := tr.pass("second")
	second.Order = 2
	tieA := tr.pass("tie-a")
	tieA.Order = 5
	tieB := tr.pass("tie-b")
	tieB.Order = 5

	state, err := sched.Execute(context.Background(), &Harness{}, []Step{
		tr.pass("unordered-1"), third, tieA, first, tr.pass("unordered-2"), tieB, second,
	})
	require.NoError(t, err)
	want := []string{"first", "second", "third", "tie-a", "tie-b", "unordered-1", "unordered-2"}
	assert.Equal(t, want, tr.executed)

	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	for i, s := range run.Steps {
		assert.Equal(t, want[i], s.Name)
	}
	assert.Equal(t, 1, run.Steps[0].Order)
}

func TestOrderSteps_DeclarationOrderByDefault(t *testing.T) {
	steps := []Step{{Name: "c"}, {Name: "a"}, {Name: "b"}}
	ordered := OrderSteps(steps)
	assert.Equal(t, "c", ordered[0].Name)
	assert.Equal(t, "a", ordered[1].Name)
	assert.Equal(t, "b", ordered[2].Name)
}

func TestStepScheduler_RecoversPanics(t *testing.T) {
	tr := &stepTrace{}
	sched, recorder, _ := newScheduler(t, nil)

	state, err := sched.Execute(context.Background(), &Harness{}, []Step{
		{Name: "boom", Run: func(ctx context.Context, h *Harness) error { panic("nil element") }},
		tr.pass("after"),
	})
	require.NoError(t, err)
	assert.Empty(t, tr.executed)

	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, types.StepStatusFailed, run.Steps[0].Status)
	assert.Contains(t, run.Steps[0].ErrorMessage(), "step panicked: nil element")
	assert.Equal(t, types.StepStatusSkipped, run.Steps[1].Status)
}

func TestStepScheduler_CancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sched, recorder, _ := newScheduler(t, nil)

	var executed []string
	steps := []Step{
		{Name: "one", Run: func(ctx context.Context, h *Harness) error {
			executed = append(executed, "one")
			cancel()
			return nil
		}},
		{Name: "two", Run: func(ctx context.Context, h *Harness) error {
			executed = append(executed, "two")
			return nil
		}},
		{Name: "three", Pending: true},
	}
	state, err := sched.Execute(ctx, &Harness{}, steps)
	require.NoError(t, err)
	assert.Equal(t, StateAborted, state)
	assert.Equal(t, StateAborted, sched.State())
	assert.Equal(t, []string{"one"}, executed)

	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusAborted, run.Status)
	assert.Equal(t, []types.StepStatus{
		types.StepStatusPassed,
		types.StepStatusSkipped,
		types.StepStatusSkipped,
	}, statuses(run))
	assert.ErrorIs(t, run.Steps[1].Error, context.Canceled)
	assert.ErrorIs(t, run.Steps[2].Error, context.Canceled)
}

func TestStepScheduler_ExecuteTwice(t *testing.T) {
	sched, _, _ := newScheduler(t, nil)
	assert.Equal(t, StateReady, sched.State())

	_, err := sched.Execute(context.Background(), &Harness{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, sched.State())

	_, err = sched.Execute(context.Background(), &Harness{}, nil)
	assert.ErrorIs(t, err, ErrSchedulerNotReady)
}

// snapshotSession is a noop session that can produce snapshots
type snapshotSession struct {
	*resource.NoopSession
}

func (s *snapshotSession) Snapshot() ([]byte, string, error) {
	return []byte("<html>" + s.CurrentURL() + "</html>"), ".html", nil
}

func TestStepScheduler_CapturesArtifactOnFailure(t *testing.T) {
	dir := t.TempDir()
	sched, recorder, _ := newScheduler(t, NewFileArtifactStore(dir))

	session := &snapshotSession{NoopSession: resource.NewNoopSession()}
	h := &Harness{Resource: session, Pages: resource.NewPages(session, "http://site.local/")}

	state, err := sched.Execute(context.Background(), h, []Step{
		{Name: "open", Run: func(ctx context.Context, h *Harness) error {
			return h.Pages.Open(ctx, "cart")
		}},
		{Name: "check total", Run: func(ctx context.Context, h *Harness) error {
			return errors.New("total mismatch")
		}},
	})
	require.NoError(t, err)

	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	assert.Empty(t, run.Steps[0].Artifact)

	artifact := run.Steps[1].Artifact
	require.NotEmpty(t, artifact)
	assert.Contains(t, artifact, "01-check_total.html")
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, "<html>http://site.local/cart</html>", string(data))
}

func TestStepScheduler_NoArtifactWithoutSnapshotter(t *testing.T) {
	sched, recorder, _ := newScheduler(t, NewFileArtifactStore(t.TempDir()))
	h := &Harness{Resource: resource.NewNoopSession()}

	state, err := sched.Execute(context.Background(), h, []Step{
		{Name: "fails", Run: func(ctx context.Context, h *Harness) error { return errors.New("nope") }},
	})
	require.NoError(t, err)
	run, err := recorder.Finalize(state)
	require.NoError(t, err)
	assert.Empty(t, run.Steps[0].Artifact)
}

func TestSchedulerState_String(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown(9)", SchedulerState(9).String())
}

func TestFailureTracker(t *testing.T) {
	tracker := NewFailureTracker()
	assert.False(t, tracker.HasFailed())
	tracker.RecordFailure()
	assert.True(t, tracker.HasFailed())
	tracker.RecordFailure()
	assert.True(t, tracker.HasFailed())
}
