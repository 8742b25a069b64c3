package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-selenese/latch"
	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/selenese"
	"github.com/ethereum-optimism/infra/op-selenese/selenese/selenesetest"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

type memorySink struct {
	mu        sync.Mutex
	records   []*types.RunRecord
	completed []string
}

func (s *memorySink) Consume(record *types.RunRecord, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memorySink) Complete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, runID)
	return nil
}

type recordingProgress struct {
	mu       sync.Mutex
	total    int
	started  []string
	updated  map[string]types.TestStatus
	complete bool
}

func (p *recordingProgress) StartRun(runID string, totalTests int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = totalTests
	p.updated = make(map[string]types.TestStatus)
}

func (p *recordingProgress) StartTest(testName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, testName)
}

func (p *recordingProgress) UpdateTest(testName string, status types.TestStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated[testName] = status
}

func (p *recordingProgress) CompleteRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.complete = true
}

func titleCase(t *testing.T, name, want string) *selenese.TestCase {
	return &selenese.TestCase{
		Name: name,
		Commands: []*selenese.Command{
			mustCommand(t, "open", "/"),
			mustCommand(t, "assertEval", "document.title", want),
		},
	}
}

func TestOrchestratorMatrix(t *testing.T) {
	d := sessionDialer(func(s *selenesetest.Session) {
		s.Scripts["return (document.title);"] = "Home"
	})
	sink := &memorySink{}
	progress := &recordingProgress{}
	o := NewOrchestrator(OrchestratorConfig{
		Runner:   testConfig(d),
		Sinks:    []logging.ResultSink{sink},
		Progress: progress,
		Log:      discardLogger(),
	})
	caps := []types.Capabilities{
		{Browser: "chrome"},
		{Browser: "firefox", Platform: "LINUX"},
	}

	result, err := o.Run(context.Background(), Plan{
		Suite:        "smoke",
		Cases:        []*selenese.TestCase{titleCase(t, "home", "Home"), titleCase(t, "cart", "Cart")},
		Capabilities: caps,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, 4, result.Stats.Total)
	assert.Equal(t, 2, result.Stats.Passed)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Equal(t, 0, result.Stats.Errored)

	// capabilities outer, test cases inner
	require.Len(t, result.Records, 4)
	names := make([]string, 0, 4)
	for _, rec := range result.Records {
		names = append(names, rec.DisplayName())
		assert.Equal(t, "smoke", rec.Suite)
	}
	assert.Equal(t, []string{
		"Test case [home @ chrome]",
		"Test case [cart @ chrome]",
		"Test case [home @ firefox on LINUX]",
		"Test case [cart @ firefox on LINUX]",
	}, names)

	first := result.FirstFailure()
	require.NotNil(t, first)
	assert.Equal(t, "Test case [cart @ chrome]", first.DisplayName())
	assert.Equal(t, 1, first.Outcome.CommandIndex)

	assert.Len(t, sink.records, 4)
	assert.Equal(t, []string{result.RunID}, sink.completed)

	assert.Equal(t, 4, progress.total)
	assert.Len(t, progress.started, 4)
	assert.Len(t, progress.updated, 4)
	assert.Equal(t, types.TestStatusFail, progress.updated["Test case [cart @ firefox on LINUX]"])
	assert.True(t, progress.complete)

	assert.Len(t, d.Sessions(), 4)
	for _, s := range d.Sessions() {
		assert.Equal(t, 1, s.QuitCalls())
	}
	assert.Contains(t, result.String(), "Total: 4, Passed: 2, Failed: 2, Errors: 0")
}

func TestOrchestratorDefaultsToAnyBrowser(t *testing.T) {
	d := sessionDialer(nil)
	var seen []types.Capabilities
	var mu sync.Mutex
	inner := d.New
	d.New = func(caps types.Capabilities) *selenesetest.Session {
		mu.Lock()
		seen = append(seen, caps)
		mu.Unlock()
		return inner(caps)
	}
	o := NewOrchestrator(OrchestratorConfig{Runner: testConfig(d), Log: discardLogger()})

	result, err := o.Run(context.Background(), Plan{
		Cases: []*selenese.TestCase{{Name: "empty"}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Nil(t, result.FirstFailure())
	assert.Equal(t, []types.Capabilities{{}}, seen)
}

func TestOrchestratorEmptyPlan(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{Runner: testConfig(sessionDialer(nil)), Log: discardLogger()})
	result, err := o.Run(context.Background(), Plan{RunID: "fixed", Suite: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", result.RunID)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Stats.Total)
}

func TestOrchestratorErroredRunsAreNotFailures(t *testing.T) {
	d := sessionDialer(nil)
	d.Failures = []error{selenese.ErrCapabilitiesNotFound}
	o := NewOrchestrator(OrchestratorConfig{Runner: testConfig(d), Log: discardLogger()})

	result, err := o.Run(context.Background(), Plan{
		Cases:        []*selenese.TestCase{{Name: "a"}},
		Capabilities: []types.Capabilities{{Browser: "netscape"}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusError, result.Status)
	assert.Equal(t, 1, result.Stats.Errored)
	assert.Nil(t, result.FirstFailure())
}

func TestOrchestratorInterrupted(t *testing.T) {
	d := sessionDialer(nil)
	cfg := testConfig(d)
	cfg.Interpreter = selenese.NewInterpreter(selenese.InterpreterConfig{
		WaitTimeout:  time.Hour,
		PollInterval: 5 * time.Millisecond,
		Log:          discardLogger(),
	})
	o := NewOrchestrator(OrchestratorConfig{
		Runner:        cfg,
		ShutdownGrace: 5 * time.Second,
		Log:           discardLogger(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	hang := &selenese.TestCase{
		Name:     "hang",
		Commands: []*selenese.Command{mustCommand(t, "waitForElementPresent", "id=never")},
	}
	result, err := o.Run(ctx, Plan{Cases: []*selenese.TestCase{hang, hang}})
	require.ErrorIs(t, err, ErrOrchestration)
	require.ErrorIs(t, err, latch.ErrInterrupted)

	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusError, result.Status)
	for _, rec := range result.Records {
		assert.Equal(t, types.TestStatusError, rec.Outcome.Status)
		assert.Equal(t, types.CauseEnvironment, rec.Outcome.Cause)
	}
	for _, s := range d.Sessions() {
		assert.Equal(t, 1, s.QuitCalls(), "sessions are closed after an interruption")
	}
}

func TestOrchestratorAbortsUnstartedRunners(t *testing.T) {
	d := sessionDialer(nil)
	o := NewOrchestrator(OrchestratorConfig{
		Runner:        testConfig(d),
		StartInterval: time.Hour,
		Log:           discardLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	cases := []*selenese.TestCase{{Name: "first"}, {Name: "second"}, {Name: "third"}}
	result, err := o.Run(ctx, Plan{Cases: cases})
	require.ErrorIs(t, err, ErrOrchestration)
	require.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusError, result.Status)
	require.Len(t, result.Records, 3)
	assert.Equal(t, types.TestStatusPass, result.Records[0].Outcome.Status)
	for _, rec := range result.Records[1:] {
		assert.Equal(t, types.TestStatusError, rec.Outcome.Status)
		assert.Contains(t, rec.Outcome.Message, "test case not started")
	}
	assert.Len(t, d.Sessions(), 1)
}

func TestOrchestratorDefersSinksPastShutdownGrace(t *testing.T) {
	release := make(chan struct{})
	d := sessionDialer(func(s *selenesetest.Session) {
		s.ScriptFunc = func(script string, args ...any) (any, error) {
			<-release
			return "Home", nil
		}
	})
	sink := &memorySink{}
	o := NewOrchestrator(OrchestratorConfig{
		Runner:        testConfig(d),
		ShutdownGrace: 20 * time.Millisecond,
		Sinks:         []logging.ResultSink{sink},
		Log:           discardLogger(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := o.Run(ctx, Plan{RunID: "stuck", Cases: []*selenese.TestCase{titleCase(t, "home", "Home")}})
	require.ErrorIs(t, err, ErrOrchestration)
	require.NotNil(t, result)

	sink.mu.Lock()
	assert.Empty(t, sink.completed, "sinks are not completed while a runner is still going")
	sink.mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.records) == 1 && len(sink.completed) == 1
	}, 5*time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"stuck"}, sink.completed)
}
