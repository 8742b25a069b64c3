package opselenese

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-selenese/browser"
	"github.com/ethereum-optimism/infra/op-selenese/exitcodes"
	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/reporting"
	"github.com/ethereum-optimism/infra/op-selenese/runner"
	"github.com/ethereum-optimism/infra/op-selenese/selenese"
	"github.com/ethereum-optimism/infra/op-selenese/selenese/document"
	"github.com/ethereum-optimism/infra/op-selenese/service"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// opSelenese implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &opSelenese{}

// opSelenese runs a Selenese suite against every configured browser, once or
// periodically.
type opSelenese struct {
	ctx       context.Context
	config    *Config
	version   string
	suite     string
	cases     []*selenese.TestCase
	runner    runner.Config
	service   *service.Service
	formatter ResultFormatter
	result    *runner.RunnerResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*opSelenese, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	dialer := browser.NewDialer(config.ServerHost, config.ServerPort, config.Log.New("component", "browser"))
	return newWithDialer(ctx, config, version, dialer, os.Stdout, shutdownCallback)
}

func newWithDialer(ctx context.Context, config *Config, version string, dialer selenese.Dialer, out io.Writer, shutdownCallback func(error)) (*opSelenese, error) {
	config.Log.Debug("Creating op-selenese with config",
		"testCase", config.TestCase,
		"testSuite", config.TestSuite,
		"baseURL", config.BaseURL,
		"capabilities", len(config.Capabilities),
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	suite, cases, err := LoadTests(config)
	if err != nil {
		return nil, err
	}
	config.Log.Info("Loaded test cases", "suite", suite, "testCases", len(cases))

	interpreter := selenese.NewInterpreter(selenese.InterpreterConfig{
		BaseURL:     config.BaseURL,
		WaitTimeout: config.WaitTimeout,
		Log:         config.Log.New("component", "interpreter"),
	})

	return &opSelenese{
		ctx:     ctx,
		config:  config,
		version: version,
		suite:   suite,
		cases:   cases,
		runner: runner.Config{
			Dialer:          dialer,
			Interpreter:     interpreter,
			CommandInterval: config.CommandInterval,
			RetryDelay:      config.RetryDelay,
			CloseRetries:    config.CloseRetries,
			ScreenshotDir:   config.ScreenshotDir,
			Log:             config.Log,
		},
		service:          service.New(config.Service, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log, out),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// LoadTests reads the configured test case or suite. The suite name is the
// document name of whichever was given.
func LoadTests(config *Config) (string, []*selenese.TestCase, error) {
	if config.TestSuite != "" {
		suite, err := document.LoadTestSuite(config.TestSuite)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load test suite: %w", err)
		}
		return suite.Name, suite.Cases, nil
	}
	tc, err := document.LoadTestCase(config.TestCase)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load test case: %w", err)
	}
	return tc.Name, []*selenese.TestCase{tc}, nil
}

// Start runs the suite immediately, then periodically at the configured
// interval unless in run-once mode.
// Start implements the cliapp.Lifecycle interface.
func (s *opSelenese) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.ctx = ctx
	s.done = make(chan struct{})
	s.running.Store(true)
	s.service.Start(ctx)

	if s.config.RunOnce {
		s.config.Log.Info("Starting op-selenese in run-once mode")
	} else {
		s.config.Log.Info("Starting op-selenese in continuous mode", "interval", s.config.RunInterval)
	}

	if err := s.runTests(ctx); err != nil {
		s.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if s.config.RunOnce {
		s.config.Log.Info("Tests completed, exiting (run-once mode)")
		if first := s.result.FirstFailure(); first != nil {
			s.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(fmt.Sprintf("%s: %s", first.DisplayName(), first.Outcome.Summary()))
		}
		if s.result.Status == types.TestStatusError {
			s.config.Log.Error("Run-once test run completed with errors", "errored", s.result.Stats.Errored)
		}
		go func() {
			s.shutdownCallback(nil)
		}()
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.config.Log.Debug("Starting periodic test runner goroutine", "interval", s.config.RunInterval)

		for {
			select {
			case <-time.After(s.config.RunInterval):
				if !s.running.Load() {
					s.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}
				s.config.Log.Info("Running periodic tests")
				if err := s.runTests(ctx); err != nil {
					s.config.Log.Error("Error running periodic tests", "error", err)
				}
			case <-s.done:
				s.config.Log.Debug("Done signal received, stopping periodic test runner")
				return
			case <-ctx.Done():
				s.config.Log.Debug("Context canceled, stopping periodic test runner")
				s.running.Store(false)
				return
			}
		}
	}()
	s.config.Log.Debug("op-selenese started successfully")
	return nil
}

// runTests runs the whole matrix once and reports the result.
func (s *opSelenese) runTests(ctx context.Context) error {
	runID := uuid.New().String()
	htmlSink, err := reporting.NewHTMLSink(s.config.LogDir, s.suite)
	if err != nil {
		return NewRuntimeError(err)
	}
	fileLogger, err := logging.NewFileLogger(s.config.LogDir, runID,
		reporting.NewJUnitSink(s.config.LogDir, s.config.ResultsFile),
		reporting.NewTextSummarySink(s.config.LogDir, s.suite, true),
		htmlSink,
	)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}

	progress := runner.NewNoOpProgressIndicator()
	if s.config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(s.config.Log, s.config.ProgressInterval)
	}

	orchestrator := runner.NewOrchestrator(runner.OrchestratorConfig{
		Runner:        s.runner,
		StartInterval: s.config.StartInterval,
		Sinks:         []logging.ResultSink{fileLogger},
		Progress:      progress,
		Log:           s.config.Log,
	})
	result, err := orchestrator.Run(ctx, runner.Plan{
		RunID:        runID,
		Suite:        s.suite,
		Cases:        s.cases,
		Capabilities: s.config.Capabilities,
	})
	if result != nil {
		s.result = result
		if ferr := s.formatter.FormatResults(s.suite, result); ferr != nil {
			s.config.Log.Error("Failed to print results", "error", ferr)
		}
	}
	if err != nil {
		return NewRuntimeError(err)
	}
	s.config.Log.Info("Test run completed", "run_id", result.RunID, "status", result.Status,
		"logDir", logging.RunDirectory(s.config.LogDir, runID))
	return nil
}

// Stop stops the periodic runner and the side endpoints.
// Stop implements the cliapp.Lifecycle interface.
func (s *opSelenese) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping op-selenese")

	if !s.running.Load() {
		s.config.Log.Debug("Service already stopped, nothing to do")
		return s.service.Shutdown(ctx)
	}
	s.running.Store(false)
	close(s.done)

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.config.Log.Warn("Periodic test runner still busy at shutdown", "err", ctx.Err())
	}

	err := s.service.Shutdown(ctx)
	s.config.Log.Info("op-selenese stopped successfully")
	return err
}

// Stopped implements the cliapp.Lifecycle interface.
func (s *opSelenese) Stopped() bool {
	return !s.running.Load()
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case err == nil:
		return exitcodes.Success
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.TestFailure
	}
}
