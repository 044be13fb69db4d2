package narrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// SessionFunc executes one session
type SessionFunc func(ctx context.Context) error

// SessionScheduler decides when sessions run
type SessionScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(SessionFunc)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

var _ SessionScheduler = (*DefaultSessionScheduler)(nil)

// DefaultSessionScheduler runs a session immediately and then, unless in
// run-once mode, again after every interval.
type DefaultSessionScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback SessionFunc

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDefaultSessionScheduler creates a new DefaultSessionScheduler
func NewDefaultSessionScheduler(interval time.Duration, runOnce bool, logger log.Logger) *DefaultSessionScheduler {
	return &DefaultSessionScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger.New("component", "session-scheduler"),
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the session to execute
func (s *DefaultSessionScheduler) RegisterCallback(callback SessionFunc) {
	s.callback = callback
}

// Start runs the first session synchronously and returns its error. In
// continuous mode the following sessions run in the background.
func (s *DefaultSessionScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.callback(ctx)
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)
	if err := s.callback(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-time.After(s.interval):
				if !s.running.Load() {
					s.logger.Debug("Scheduler stopped, exiting periodic session loop")
					return
				}
				s.logger.Info("Running periodic session")
				if err := s.callback(ctx); err != nil {
					s.logger.Error("Error running periodic session", "error", err)
				}

			case <-s.done:
				s.logger.Debug("Done signal received, stopping periodic session loop")
				return

			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping periodic session loop")
				s.running.Store(false)
				return
			}
		}
	}()
	return nil
}

// Stop stops scheduling new sessions. A running session is not interrupted.
func (s *DefaultSessionScheduler) Stop() error {
	if !s.running.Swap(false) {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped
func (s *DefaultSessionScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the background loop has exited
func (s *DefaultSessionScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for session loop to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
