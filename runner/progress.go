package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-selenese/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartRun(runID string, totalTests int)
	StartTest(testName string)
	UpdateTest(testName string, status types.TestStatus)
	CompleteRun(runID string)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(runID string, totalTests int)               {}
func (n *noOpProgressIndicator) StartTest(testName string)                           {}
func (n *noOpProgressIndicator) UpdateTest(testName string, status types.TestStatus) {}
func (n *noOpProgressIndicator) CompleteRun(runID string)                            {}

// consoleProgressIndicator periodically logs how far the current run is
type consoleProgressIndicator struct {
	logger   log.Logger
	interval time.Duration
	mu       sync.RWMutex

	runID          string
	completedTests int
	failedTests    int
	totalTests     int
	runStartTime   time.Time

	// Track currently running tests
	runningTests map[string]time.Time // test name -> start time

	stopCh chan struct{}
}

// NewConsoleProgressIndicator creates a progress indicator that reports to
// the logger every updateInterval while a run is in progress.
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}
	return &consoleProgressIndicator{
		logger:       logger,
		interval:     updateInterval,
		runningTests: make(map[string]time.Time),
	}
}

func (c *consoleProgressIndicator) StartRun(runID string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runID = runID
	c.totalTests = totalTests
	c.completedTests = 0
	c.failedTests = 0
	c.runStartTime = time.Now()
	c.runningTests = make(map[string]time.Time)
	c.stopCh = make(chan struct{})
	go c.progressReporter(c.stopCh)

	c.logger.Info("Starting run", "run_id", runID, "totalTests", totalTests)
}

// StartTest tracks when a test starts running
func (c *consoleProgressIndicator) StartTest(testName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[testName] = time.Now()
	c.logger.Debug("Test started", "test", testName, "runningTests", len(c.runningTests))
}

func (c *consoleProgressIndicator) UpdateTest(testName string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, testName)
	c.completedTests++
	if status != types.TestStatusPass {
		c.failedTests++
	}
	c.logger.Debug("Test completed", "test", testName, "status", status, "completed", c.completedTests, "total", c.totalTests)
}

func (c *consoleProgressIndicator) CompleteRun(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	duration := time.Since(c.runStartTime).Truncate(time.Second)
	c.logger.Info("Completed run", "run_id", runID, "completed", c.completedTests, "notPassed", c.failedTests, "duration", duration)
	c.runningTests = make(map[string]time.Time)
}

func (c *consoleProgressIndicator) progressReporter(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.reportProgress()
		case <-stop:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}
	c.logger.Info("Progress update",
		"run_id", c.runID,
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, 3),
	)
}

// formatRunningTests lists the longest running tests first
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}
	var running []runningTest
	now := time.Now()
	for testName, startTime := range runningTests {
		running = append(running, runningTest{name: testName, duration: now.Sub(startTime)})
	}
	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}
	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}
	return strings.Join(runningStrs, ", ")
}
