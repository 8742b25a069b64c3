package runner

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// Result is a write-once outcome cell. The first Set wins; later calls are
// ignored so an existing verdict is never overwritten.
type Result struct {
	mu      sync.RWMutex
	outcome types.Outcome
	set     bool
}

// Set records o unless an outcome is already recorded and reports whether
// it did.
func (r *Result) Set(o types.Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		return false
	}
	r.outcome = o
	r.set = true
	return true
}

func (r *Result) Get() (types.Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outcome, r.set
}

// RunnerResult aggregates every run of one orchestrated matrix.
type RunnerResult struct {
	RunID    string
	Records  []*types.RunRecord // in scheduling order
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
}

// ResultStats tracks run counts
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Errored   int
	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) add(status types.TestStatus) {
	s.Total++
	switch status {
	case types.TestStatusPass:
		s.Passed++
	case types.TestStatusFail:
		s.Failed++
	case types.TestStatusError:
		s.Errored++
	}
}

// FirstFailure returns the earliest scheduled run that failed an assertion.
func (r *RunnerResult) FirstFailure() *types.RunRecord {
	for _, rec := range r.Records {
		if rec.Outcome.Failed() {
			return rec
		}
	}
	return nil
}

func (r *RunnerResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selenese Run Results (%s):\n", formatDuration(r.Duration))
	fmt.Fprintf(&b, "Total: %d, Passed: %d, Failed: %d, Errors: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Errored)
	for _, rec := range r.Records {
		fmt.Fprintf(&b, "├── %s: %s", rec.DisplayName(), rec.Outcome.Status)
		if !rec.Outcome.Succeeded() {
			fmt.Fprintf(&b, " (%s)", rec.Outcome.Summary())
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
