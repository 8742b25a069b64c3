package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-selenese/latch"
	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/metrics"
	"github.com/ethereum-optimism/infra/op-selenese/selenese"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const (
	DefaultStartInterval = time.Second
	// DefaultShutdownGrace bounds how long an interrupted run waits for its
	// runners to close their sessions.
	DefaultShutdownGrace = 30 * time.Second
)

var ErrOrchestration = errors.New("orchestration failed")

// OrchestratorConfig holds the configuration of an Orchestrator.
type OrchestratorConfig struct {
	Runner Config
	// StartInterval separates two consecutive runner starts.
	StartInterval time.Duration
	ShutdownGrace time.Duration
	Sinks         []logging.ResultSink
	Progress      ProgressIndicator
	Log           log.Logger
}

// Plan is one matrix of test cases and browser configurations.
type Plan struct {
	// RunID identifies the run in sinks and metrics. A random one is
	// generated when empty.
	RunID        string
	Suite        string
	Cases        []*selenese.TestCase
	Capabilities []types.Capabilities
}

// Size returns the number of runs the plan schedules.
func (p Plan) Size() int {
	return len(p.Cases) * len(p.capabilities())
}

func (p Plan) capabilities() []types.Capabilities {
	if len(p.Capabilities) == 0 {
		return []types.Capabilities{{}}
	}
	return p.Capabilities
}

// Orchestrator runs every test case of a plan against every configuration
// and waits for all of them.
type Orchestrator struct {
	cfg    OrchestratorConfig
	tracer trace.Tracer
	log    log.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.StartInterval < 0 {
		cfg.StartInterval = 0
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Runner.Log == nil {
		cfg.Runner.Log = cfg.Log
	}
	return &Orchestrator{
		cfg:    cfg,
		tracer: otel.Tracer("op-selenese"),
		log:    cfg.Log,
	}
}

// Run executes plan. The returned error is non-nil only when the
// orchestration itself failed; test failures are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*RunnerResult, error) {
	runID := plan.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "selenese run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("suite", plan.Suite),
			attribute.Int("runs", plan.Size()),
		))
	defer span.End()

	l := latch.New[*TestCaseRunner](plan.Size())
	var runners []*TestCaseRunner
	for _, caps := range plan.capabilities() {
		for _, tc := range plan.Cases {
			id := strconv.Itoa(len(runners))
			runners = append(runners, newTestCaseRunner(id, runID, o.cfg.Runner, tc, plan.Suite, caps, l, o.tracer))
		}
	}

	// Mutated only from latch listeners.
	stats := ResultStats{StartTime: start}
	if err := o.registerListeners(l, runID, &stats); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrchestration, err)
	}

	o.log.Info("Starting selenese run", "run_id", runID, "suite", plan.Suite,
		"testCases", len(plan.Cases), "configurations", len(plan.capabilities()))
	o.cfg.Progress.StartRun(runID, len(runners))

	var (
		wg      sync.WaitGroup
		aborted error
	)
	for i, r := range runners {
		if i > 0 && o.cfg.StartInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.cfg.StartInterval):
			}
		}
		if ctx.Err() != nil {
			aborted = fmt.Errorf("run interrupted: %w", context.Cause(ctx))
			for _, pending := range runners[i:] {
				pending.abort(aborted)
			}
			break
		}
		o.cfg.Progress.StartTest(r.Name())
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	var (
		runErr    error
		straggled bool
	)
	if err := l.Wait(ctx); err != nil {
		runErr = fmt.Errorf("%w: %w", ErrOrchestration, err)
		o.log.Error("Run interrupted, waiting for test cases to shut down", "grace", o.cfg.ShutdownGrace, "err", err)
		if !waitTimeout(&wg, o.cfg.ShutdownGrace) && l.Count() > 0 {
			straggled = true
			o.log.Warn("Test cases still running after shutdown grace period, results will be written when they finish",
				"remaining", l.Count())
		}
	} else if aborted != nil {
		runErr = fmt.Errorf("%w: %w", ErrOrchestration, aborted)
	}

	stop := time.Now()
	if straggled {
		// Sinks stay open until the last runner has consumed into them.
		go func() {
			<-l.Done()
			o.completeSinks(runID)
		}()
	} else {
		o.completeSinks(runID)
	}
	o.cfg.Progress.CompleteRun(runID)

	result := &RunnerResult{
		RunID:    runID,
		Status:   types.TestStatusPass,
		Duration: stop.Sub(start),
	}
	for _, r := range runners {
		result.Records = append(result.Records, r.Record())
	}
	l.Inspect(func(int) {
		result.Stats = stats
	})
	result.Stats.EndTime = stop
	switch {
	case result.Stats.Failed > 0:
		result.Status = types.TestStatusFail
	case result.Stats.Errored > 0 || runErr != nil:
		result.Status = types.TestStatusError
	}

	metrics.RecordRun(plan.Suite, runID, result.Status,
		result.Stats.Passed, result.Stats.Failed, result.Stats.Errored, result.Duration)
	span.SetAttributes(attribute.String("status", string(result.Status)))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	o.log.Info("Selenese run finished", "run_id", runID, "status", result.Status,
		"passed", result.Stats.Passed, "failed", result.Stats.Failed, "errored", result.Stats.Errored,
		"duration", result.Duration)
	return result, runErr
}

func (o *Orchestrator) completeSinks(runID string) {
	for _, sink := range o.cfg.Sinks {
		if err := sink.Complete(runID); err != nil {
			o.log.Error("Failed to complete result sink", "err", err)
			metrics.RecordErrorDetails("sink_complete", err)
		}
	}
}

func (o *Orchestrator) registerListeners(l *latch.Latch[*TestCaseRunner], runID string, stats *ResultStats) error {
	listeners := []latch.Listener[*TestCaseRunner]{
		// console
		func(r *TestCaseRunner, remaining int) {
			outcome, _ := r.Outcome()
			switch outcome.Status {
			case types.TestStatusPass:
				o.log.Info(fmt.Sprintf("SUCCESS: %s", r.Name()), "remaining", remaining)
			case types.TestStatusFail:
				o.log.Warn(fmt.Sprintf("FAILURE: %s: %s", r.Name(), outcome.Summary()), "remaining", remaining)
			default:
				o.log.Error(fmt.Sprintf("ERROR: %s: %s", r.Name(), outcome.Summary()), "cause", outcome.Cause, "remaining", remaining)
			}
		},
		// sinks
		func(r *TestCaseRunner, remaining int) {
			record := r.Record()
			for _, sink := range o.cfg.Sinks {
				if err := sink.Consume(record, runID); err != nil {
					o.log.Error("Failed to consume run record", "test", r.Name(), "err", err)
					metrics.RecordErrorDetails("sink_consume", err)
				}
			}
		},
		// counters
		func(r *TestCaseRunner, remaining int) {
			outcome, _ := r.Outcome()
			stats.add(outcome.Status)
		},
		// metrics
		func(r *TestCaseRunner, remaining int) {
			record := r.Record()
			metrics.RecordTestCase(record.Suite, record.Capabilities.String(),
				record.Outcome.Status, record.Outcome.Cause, record.Duration)
		},
		// progress
		func(r *TestCaseRunner, remaining int) {
			outcome, _ := r.Outcome()
			o.cfg.Progress.UpdateTest(r.Name(), outcome.Status)
		},
	}
	for _, fn := range listeners {
		if err := l.AddListener(fn); err != nil {
			return err
		}
	}
	return nil
}

// waitTimeout waits for wg and reports whether it finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
