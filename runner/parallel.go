package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"

	"github.com/ethereum-optimism/infra/op-narrator/metrics"
	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// TaskFunc produces one independent run
type TaskFunc func(ctx context.Context) (*RunOutcome, error)

// Task is a unit of work submitted to the ParallelScheduler
type Task struct {
	ID   string
	Name string
	Run  TaskFunc
}

// TaskResult contains the result of executing a Task
type TaskResult struct {
	TaskID   string
	Name     string
	Outcome  *RunOutcome
	Err      error
	Started  bool // False when the task was cancelled before a worker picked it up
	Duration time.Duration
}

// ScheduleResult collects task results in completion order
type ScheduleResult struct {
	Results   []TaskResult
	Completed int // Tasks that started and returned
	Cancelled int // Tasks that never started
}

// Runs returns the finalized runs of every task that produced one
func (r *ScheduleResult) Runs() []*types.Run {
	runs := make([]*types.Run, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Outcome != nil && res.Outcome.Run != nil {
			runs = append(runs, res.Outcome.Run)
		}
	}
	return runs
}

// Err aggregates the errors returned by tasks that ran
func (r *ScheduleResult) Err() error {
	var result *multierror.Error
	for _, res := range r.Results {
		if res.Started && res.Err != nil {
			result = multierror.Append(result, fmt.Errorf("task %s failed: %w", res.Name, res.Err))
		}
	}
	return result.ErrorOrNil()
}

// scheduledTask is a task tracked in the pending set with its own cancel func
type scheduledTask struct {
	task   Task
	ctx    context.Context
	cancel context.CancelFunc
}

// ParallelScheduler executes independent tasks on a fixed-size worker pool
type ParallelScheduler struct {
	parallelism int
	log         log.Logger
	ui          ProgressIndicator
}

// NewParallelScheduler creates a scheduler with the given pool size. Zero
// picks a size from the number of CPUs.
func NewParallelScheduler(parallelism int, logger log.Logger, ui ProgressIndicator) *ParallelScheduler {
	if parallelism < 0 {
		panic("parallelism cannot be negative")
	}
	if parallelism == 0 {
		parallelism = min(runtime.NumCPU(), MaxReasonableParallelism)
	}
	if parallelism > MaxReasonableParallelism {
		logger.Warn("Very high parallelism requested", "parallelism", parallelism,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}
	if ui == nil {
		ui = NewNoOpProgressIndicator()
	}
	return &ParallelScheduler{
		parallelism: parallelism,
		log:         logger.New("component", "parallel-scheduler"),
		ui:          ui,
	}
}

// Parallelism returns the worker-pool size
func (s *ParallelScheduler) Parallelism() int {
	return s.parallelism
}

// Execute runs every task and waits for all of them. Results are collected
// in completion order.
//
// When ctx is cancelled while waiting, every pending task is cancelled:
// tasks no worker has picked up never start and running tasks observe the
// cancellation through their context. Execute then waits for the pool to
// drain and returns the partial result together with a
// SchedulingInterruptedError.
func (s *ParallelScheduler) Execute(ctx context.Context, tasks []Task) (*ScheduleResult, error) {
	result := &ScheduleResult{Results: make([]TaskResult, 0, len(tasks))}
	if len(tasks) == 0 {
		return result, nil
	}

	pending := make(map[string]*scheduledTask, len(tasks))
	workChan := make(chan *scheduledTask, len(tasks))
	completions := make(chan TaskResult, len(tasks))

	for i, task := range tasks {
		if task.ID == "" {
			task.ID = fmt.Sprintf("task-%d", i)
		}
		if task.Name == "" {
			task.Name = task.ID
		}
		if _, dup := pending[task.ID]; dup {
			for _, st := range pending {
				st.cancel()
			}
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		taskCtx, cancel := context.WithCancel(ctx)
		st := &scheduledTask{task: task, ctx: taskCtx, cancel: cancel}
		pending[task.ID] = st
		workChan <- st
	}
	close(workChan)
	metrics.SetPendingTasks(len(pending))

	s.log.Info("Starting parallel execution", "tasks", len(tasks), "parallelism", s.parallelism)
	s.ui.StartSession(len(tasks))
	defer s.ui.CompleteSession()

	var wg sync.WaitGroup
	for i := 0; i < s.parallelism; i++ {
		wg.Add(1)
		go s.worker(i, &wg, workChan, completions)
	}

	drain := func(res TaskResult) {
		st, ok := pending[res.TaskID]
		if !ok {
			s.log.Error("Completion for unknown task", "task", res.TaskID)
			return
		}
		st.cancel()
		delete(pending, res.TaskID)
		metrics.SetPendingTasks(len(pending))

		if res.Started {
			result.Completed++
		} else {
			result.Cancelled++
		}
		result.Results = append(result.Results, res)
	}

	interrupt := func() (*ScheduleResult, error) {
		cause := context.Cause(ctx)
		s.log.Warn("Parallel execution interrupted, cancelling pending tasks", "pending", len(pending), "cause", cause)
		metrics.RecordInterruption()
		for _, st := range pending {
			st.cancel()
		}
		// Shut the pool down: workers exit once the queue is empty
		wg.Wait()
		close(completions)
		for res := range completions {
			drain(res)
		}
		return result, NewSchedulingInterruptedError(cause, result)
	}

	for len(pending) > 0 {
		// Prefer the interruption over completions that are already queued
		if ctx.Err() != nil {
			return interrupt()
		}
		select {
		case res := <-completions:
			drain(res)
		case <-ctx.Done():
			return interrupt()
		}
	}

	wg.Wait()
	if result.Cancelled > 0 {
		// The last completions raced the interruption
		return result, NewSchedulingInterruptedError(context.Cause(ctx), result)
	}
	s.log.Info("Parallel execution completed", "tasks", len(tasks), "completed", result.Completed)
	return result, nil
}

// worker processes tasks until the queue is empty. A task whose context is
// already cancelled is reported as not started without running it.
func (s *ParallelScheduler) worker(id int, wg *sync.WaitGroup, workChan <-chan *scheduledTask, completions chan<- TaskResult) {
	defer wg.Done()
	s.log.Debug("Worker starting", "worker", id)
	defer s.log.Debug("Worker exiting", "worker", id)

	for st := range workChan {
		if st.ctx.Err() != nil {
			completions <- TaskResult{TaskID: st.task.ID, Name: st.task.Name, Err: context.Cause(st.ctx)}
			continue
		}

		s.ui.StartRun(st.task.Name)
		start := time.Now()
		outcome, err := runTask(st)
		res := TaskResult{
			TaskID:   st.task.ID,
			Name:     st.task.Name,
			Outcome:  outcome,
			Err:      err,
			Started:  true,
			Duration: time.Since(start),
		}
		status := types.RunStatusAborted
		if outcome != nil && outcome.Run != nil {
			status = outcome.Run.Status
		}
		s.ui.FinishRun(st.task.Name, status)
		if err != nil {
			s.log.Error("Task failed", "worker", id, "task", st.task.Name, "error", err)
		}
		completions <- res
	}
}

// runTask runs the task body, turning panics into errors
func runTask(st *scheduledTask) (outcome *RunOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	if st.task.Run == nil {
		return nil, fmt.Errorf("task %s has nothing to run", st.task.ID)
	}
	return st.task.Run(st.ctx)
}
