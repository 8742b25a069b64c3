package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
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
	DefaultCloseRetries    = 10
	DefaultRetryDelay      = time.Second
	DefaultCommandInterval = 100 * time.Millisecond
)

// State is a stage of a TestCaseRunner's lifecycle.
type State int32

const (
	StatePending State = iota
	StateInitializing
	StateRunning
	StateSucceeded
	StateFailed
	StateErrored
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateErrored:
		return "errored"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds what every TestCaseRunner of a run shares.
type Config struct {
	Dialer      selenese.Dialer
	Interpreter *selenese.Interpreter
	// CommandInterval is slept after every command.
	CommandInterval time.Duration
	// RetryDelay separates two attempts to reach an unreachable browser.
	RetryDelay time.Duration
	// CloseRetries bounds the attempts to quit a session.
	CloseRetries int
	// ScreenshotDir receives failure screenshots. Empty disables them.
	ScreenshotDir string
	Log           log.Logger
}

func (c Config) withDefaults() Config {
	if c.CloseRetries <= 0 {
		c.CloseRetries = DefaultCloseRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.CommandInterval < 0 {
		c.CommandInterval = 0
	}
	if c.Log == nil {
		c.Log = log.Root()
	}
	return c
}

// TestCaseRunner runs one test case against one browser configuration. It
// never returns an error: every failure ends up in its Result.
type TestCaseRunner struct {
	id       string
	runID    string
	cfg      Config
	testCase *selenese.TestCase
	suite    string
	caps     types.Capabilities
	latch    *latch.Latch[*TestCaseRunner]
	tracer   trace.Tracer
	log      log.Logger

	state       atomic.Int32
	result      Result
	sessionDead bool
	countedDown sync.Once

	mu         sync.Mutex
	sessionID  string
	trace      []types.CommandTrace
	screenshot string
	started    time.Time
	duration   time.Duration
}

func newTestCaseRunner(
	id, runID string,
	cfg Config,
	tc *selenese.TestCase,
	suite string,
	caps types.Capabilities,
	l *latch.Latch[*TestCaseRunner],
	tracer trace.Tracer,
) *TestCaseRunner {
	cfg = cfg.withDefaults()
	return &TestCaseRunner{
		id:       id,
		runID:    runID,
		cfg:      cfg,
		testCase: tc,
		suite:    suite,
		caps:     caps,
		latch:    l,
		tracer:   tracer,
		log:      cfg.Log.New("test", tc.Name, "caps", caps.String()),
	}
}

// Name renders the runner the way it is reported on the console.
func (r *TestCaseRunner) Name() string {
	return fmt.Sprintf("Test case [%s @ %s]", r.testCase.Name, r.caps)
}

func (r *TestCaseRunner) State() State {
	return State(r.state.Load())
}

func (r *TestCaseRunner) setState(s State) {
	r.state.Store(int32(s))
}

// Outcome returns the recorded verdict, if any.
func (r *TestCaseRunner) Outcome() (types.Outcome, bool) {
	return r.result.Get()
}

// Record returns a snapshot of everything known about the run.
func (r *TestCaseRunner) Record() *types.RunRecord {
	outcome, _ := r.result.Get()
	r.mu.Lock()
	defer r.mu.Unlock()
	commands := make([]types.CommandTrace, len(r.trace))
	copy(commands, r.trace)
	return &types.RunRecord{
		ID:           r.id,
		TestName:     r.testCase.Name,
		Suite:        r.suite,
		Capabilities: r.caps,
		SessionID:    r.sessionID,
		Outcome:      outcome,
		Commands:     commands,
		Screenshot:   r.screenshot,
		Started:      r.started,
		Duration:     r.duration,
	}
}

// Run drives the test case to completion and counts the latch down exactly
// once, whatever happens.
func (r *TestCaseRunner) Run(ctx context.Context) {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test case %s", r.testCase.Name),
		trace.WithAttributes(
			attribute.String("test", r.testCase.Name),
			attribute.String("capabilities", r.caps.String()),
		))
	defer span.End()
	defer r.terminate(span)

	r.setState(StateInitializing)
	session, err := r.acquire(ctx)
	if err != nil {
		r.errored(types.NoCommand, "session initialization", err)
		r.setState(StateErrored)
		return
	}
	r.mu.Lock()
	r.sessionID = session.ID()
	r.mu.Unlock()
	r.log.Info("Browser session acquired", "session", session.ID())
	metrics.SessionOpened()
	defer metrics.SessionClosed()
	defer r.close(ctx, session)

	r.setState(StateRunning)
	r.runCommands(ctx, session)

	outcome, _ := r.result.Get()
	switch outcome.Status {
	case types.TestStatusPass:
		r.setState(StateSucceeded)
	case types.TestStatusFail:
		r.setState(StateFailed)
		r.captureScreenshot(ctx, session)
	default:
		r.setState(StateErrored)
	}
}

// abort terminates a runner that was never started.
func (r *TestCaseRunner) abort(err error) {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()
	r.errored(types.NoCommand, "test case not started", err)
	r.setState(StateErrored)
	r.terminate(nil)
}

func (r *TestCaseRunner) acquire(ctx context.Context) (selenese.Session, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("interrupted before session start: %w", context.Cause(ctx))
		}
		session, err := r.cfg.Dialer.Dial(ctx, r.caps)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, selenese.ErrUnreachable) {
			return nil, err
		}
		metrics.RecordError("session_unreachable")
		r.log.Warn("Browser unreachable, retrying", "attempt", attempt, "delay", r.cfg.RetryDelay, "err", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("interrupted while waiting for browser: %w", context.Cause(ctx))
		case <-time.After(r.cfg.RetryDelay):
		}
	}
}

func (r *TestCaseRunner) runCommands(ctx context.Context, session selenese.Session) {
	vars := selenese.NewVariables()
	for i, cmd := range r.testCase.Commands {
		if ctx.Err() != nil {
			r.errored(i, cmd.String(), fmt.Errorf("interrupted: %w", context.Cause(ctx)))
			return
		}
		if err := r.execute(ctx, session, vars, i, cmd); err != nil {
			r.classify(i, cmd, err)
			return
		}
		if r.cfg.CommandInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.CommandInterval):
			}
		}
	}
	r.result.Set(types.SuccessOutcome())
}

func (r *TestCaseRunner) execute(ctx context.Context, session selenese.Session, vars *selenese.Variables, i int, cmd *selenese.Command) error {
	compiled, cerr := cmd.CompiledString(vars)
	if cerr != nil {
		compiled = cmd.String()
	}
	r.log.Info("Executing command", "index", i, "command", cmd.String())
	r.log.Debug("Compiled command", "index", i, "command", compiled)

	if err := selenese.InstallErrorHook(ctx, session); err != nil {
		r.log.Debug("Failed to install page error hook", "err", err)
	}

	start := time.Now()
	err := r.cfg.Interpreter.Execute(ctx, session, vars, cmd)
	elapsed := time.Since(start)

	if pageErrors, perr := selenese.CollectPageErrors(ctx, session); perr != nil {
		r.log.Debug("Failed to collect page errors", "err", perr)
	} else {
		for _, msg := range pageErrors {
			r.log.Warn("JavaScript error on page", "index", i, "command", cmd.String(), "error", msg)
		}
	}

	entry := types.CommandTrace{
		Index:    i,
		Command:  cmd.String(),
		Compiled: compiled,
		Duration: elapsed,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.mu.Lock()
	r.trace = append(r.trace, entry)
	r.mu.Unlock()
	return err
}

func (r *TestCaseRunner) classify(i int, cmd *selenese.Command, err error) {
	cause := selenese.Classify(err)
	if selenese.IsSessionDead(err) {
		r.sessionDead = true
	}
	switch cause {
	case types.CauseAssertion:
		r.result.Set(types.Outcome{
			Status:       types.TestStatusFail,
			Cause:        cause,
			Message:      fmt.Sprintf("%s: %s", cmd, err),
			CommandIndex: i,
			Err:          err,
		})
	default:
		r.errored(i, cmd.String(), err)
	}
}

// errored records an error outcome, attributed to the test definition or
// to the environment depending on err.
func (r *TestCaseRunner) errored(i int, where string, err error) {
	cause := selenese.Classify(err)
	if cause != types.CauseAuthoring {
		cause = types.CauseEnvironment
	}
	if selenese.IsSessionDead(err) {
		r.sessionDead = true
	}
	r.result.Set(types.Outcome{
		Status:       types.TestStatusError,
		Cause:        cause,
		Message:      fmt.Sprintf("%s: %s", where, err),
		CommandIndex: i,
		Err:          err,
	})
}

func (r *TestCaseRunner) captureScreenshot(ctx context.Context, session selenese.Session) {
	if r.cfg.ScreenshotDir == "" {
		return
	}
	png, err := session.Screenshot(context.WithoutCancel(ctx))
	if err != nil {
		r.log.Warn("Failed to take screenshot", "err", err)
		return
	}
	dir := filepath.Join(r.cfg.ScreenshotDir, r.runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		r.log.Warn("Failed to create screenshot directory", "dir", dir, "err", err)
		return
	}
	path := filepath.Join(dir, logging.SafeFilename(r.testCase.Name+"@"+r.caps.String())+".png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		r.log.Warn("Failed to write screenshot", "path", path, "err", err)
		return
	}
	r.mu.Lock()
	r.screenshot = path
	r.mu.Unlock()
	r.log.Info("Saved failure screenshot", "path", path)
}

// close quits the session with a bounded number of attempts. Failing to
// close never changes the verdict.
func (r *TestCaseRunner) close(ctx context.Context, session selenese.Session) {
	if r.sessionDead {
		r.log.Warn("Browser session presumed dead, not quitting", "session", session.ID())
		return
	}
	r.setState(StateClosing)
	r.log.Info("Closing browser session", "session", session.ID())
	// Quit even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)
	var lastErr error
	for attempt := 1; attempt <= r.cfg.CloseRetries; attempt++ {
		if lastErr = session.Quit(ctx); lastErr == nil {
			return
		}
		r.log.Debug("Failed to close browser session", "attempt", attempt, "err", lastErr)
	}
	r.log.Warn(fmt.Sprintf("failed to close browser session after %d attempts", r.cfg.CloseRetries),
		"session", session.ID(), "err", lastErr)
}

// terminate recovers a panicking run, records it, and counts the latch
// down exactly once.
func (r *TestCaseRunner) terminate(span trace.Span) {
	if p := recover(); p != nil {
		r.log.Error("Test case runner panicked", "panic", p)
		r.errored(types.NoCommand, "test case shutdown", fmt.Errorf("panic: %v", p))
	}
	if _, ok := r.result.Get(); !ok {
		r.errored(types.NoCommand, "test case shutdown", errors.New("no verdict recorded"))
	}
	r.setState(StateTerminated)
	r.mu.Lock()
	r.duration = time.Since(r.started)
	r.mu.Unlock()

	outcome, _ := r.result.Get()
	if span != nil {
		span.SetAttributes(attribute.String("status", string(outcome.Status)))
		if !outcome.Succeeded() {
			span.SetStatus(codes.Error, outcome.Summary())
		}
	}
	r.log.Info("Test case finished", "status", outcome.Status, "duration", r.duration)

	r.countedDown.Do(func() {
		if err := r.latch.CountDown(r); err != nil {
			r.log.Error("Failed to count down completion latch", "err", err)
		}
	})
}
