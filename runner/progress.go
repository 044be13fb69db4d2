package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

// ProgressIndicator interface for UI updates. Methods may be called from
// several workers at once.
type ProgressIndicator interface {
	StartSession(totalRuns int)
	StartRun(name string)
	FinishRun(name string, status types.RunStatus)
	CompleteSession()
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartSession(totalRuns int)                    {}
func (n *noOpProgressIndicator) StartRun(name string)                          {}
func (n *noOpProgressIndicator) FinishRun(name string, status types.RunStatus) {}
func (n *noOpProgressIndicator) CompleteSession()                              {}

// ConsoleProgressIndicator periodically logs how far a session has come
type ConsoleProgressIndicator struct {
	logger   log.Logger
	interval time.Duration
	mu       sync.RWMutex

	stopCh chan struct{}

	completedRuns int
	failedRuns    int
	totalRuns     int
	sessionStart  time.Time

	// Track currently running runs
	runningRuns map[string]time.Time // run name -> start time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) *ConsoleProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}
	return &ConsoleProgressIndicator{
		logger:      logger.New("component", "progress"),
		interval:    updateInterval,
		runningRuns: make(map[string]time.Time),
	}
}

func (c *ConsoleProgressIndicator) StartSession(totalRuns int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRuns = totalRuns
	c.completedRuns = 0
	c.failedRuns = 0
	c.sessionStart = time.Now()
	c.runningRuns = make(map[string]time.Time)
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.stopCh = make(chan struct{})

	c.logger.Info("Starting session", "totalRuns", totalRuns)
	go c.progressReporter(c.stopCh)
}

// StartRun tracks when a run starts
func (c *ConsoleProgressIndicator) StartRun(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningRuns[name] = time.Now()
	c.logger.Debug("Run started", "run", name, "running", len(c.runningRuns))
}

func (c *ConsoleProgressIndicator) FinishRun(name string, status types.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningRuns, name)
	c.completedRuns++
	if status == types.RunStatusFailed || status == types.RunStatusAborted {
		c.failedRuns++
	}
	c.logger.Debug("Run completed", "run", name, "status", status, "completed", c.completedRuns, "total", c.totalRuns)
}

func (c *ConsoleProgressIndicator) CompleteSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	duration := time.Since(c.sessionStart).Truncate(time.Second)
	c.logger.Info("Completed session", "totalRuns", c.totalRuns, "completed", c.completedRuns,
		"failed", c.failedRuns, "duration", duration)
}

// Snapshot returns the completed and total run counts
func (c *ConsoleProgressIndicator) Snapshot() (completed, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.completedRuns, c.totalRuns
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *ConsoleProgressIndicator) progressReporter(stopCh <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.reportProgress()
		case <-stopCh:
			return
		}
	}
}

func (c *ConsoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percentComplete float64
	if c.totalRuns > 0 {
		percentComplete = float64(c.completedRuns) * 100.0 / float64(c.totalRuns)
	}

	c.logger.Info("Progress update",
		"completed", c.completedRuns,
		"total", c.totalRuns,
		"failed", c.failedRuns,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningRuns),
		"longestRunning", formatRunning(c.runningRuns, 3),
	)
}

// formatRunning formats the longest running entries into a display string
func formatRunning(running map[string]time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}

	type runningRun struct {
		name     string
		duration time.Duration
	}

	var entries []runningRun
	now := time.Now()
	for name, startTime := range running {
		entries = append(entries, runningRun{name: name, duration: now.Sub(startTime)})
	}

	// Longest running first
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].duration > entries[j].duration
	})

	var parts []string
	for i, e := range entries {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", e.name, e.duration.Truncate(time.Second)))
	}
	if len(entries) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(entries)-maxShow))
	}
	return strings.Join(parts, ", ")
}
