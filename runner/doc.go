// Package runner provides components for executing acceptance-test runs in a structured, ordered manner.
//
// The main components are:
//   - FailureTracker: Per-run flag recording whether any step has failed
//   - OutcomeRecorder: Accumulates step results into an immutable run record
//   - StepScheduler: Executes a run's steps in order with fail-fast skip semantics
//   - Coordinator: Wires resource, scheduler, recorder and report dispatch together for one run
//   - ParallelScheduler: Executes independent runs on a bounded worker pool
//
// A Coordinator owns the explicit before/execute/after sequence of a run. Every run
// gets its own resource, failure tracker, recorder and dispatcher, so the parallel
// scheduler can execute many of them at once without shared mutable state.
package runner
