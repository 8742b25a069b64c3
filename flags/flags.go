package flags

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const EnvVarPrefix = "OP_SELENESE"

var (
	BaseURL = &cli.StringFlag{
		Name:     "base-url",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "BASE_URL"),
		Usage:    "URL prepended to the argument of every 'open' command (eg. 'http://localhost:8080')",
	}
	TestCase = &cli.StringFlag{
		Name:    "test-case",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_CASE"),
		Usage:   "Path to a single HTML test case. Mutually exclusive with --test-suite",
	}
	TestSuite = &cli.StringFlag{
		Name:    "test-suite",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_SUITE"),
		Usage:   "Path to an HTML test suite. Mutually exclusive with --test-case",
	}
	ServerHost = &cli.StringFlag{
		Name:    "server.host",
		Value:   "localhost",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_HOST"),
		Usage:   "Host of the remote browser server",
	}
	ServerPort = &cli.IntFlag{
		Name:    "server.port",
		Value:   4444,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVER_PORT"),
		Usage:   "Port of the remote browser server",
	}
	Capabilities = &cli.StringSliceFlag{
		Name:    "capabilities",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPABILITIES"),
		Usage:   "Browser configuration as browser[:version[:platform]], repeatable (eg. 'chrome:120:LINUX')",
		Action: func(ctx *cli.Context, values []string) error {
			for _, v := range values {
				if _, err := types.ParseCapabilities(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
	CapabilitiesFile = &cli.StringFlag{
		Name:    "capabilities-file",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPABILITIES_FILE"),
		Usage:   "Path to a YAML list of browser configurations, added to --capabilities",
	}
	CommandInterval = &cli.DurationFlag{
		Name:    "command-interval",
		Value:   100 * time.Millisecond,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMMAND_INTERVAL"),
		Usage:   "Delay after every command",
	}
	StartInterval = &cli.DurationFlag{
		Name:    "start-interval",
		Value:   time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "START_INTERVAL"),
		Usage:   "Delay between two test case starts",
	}
	WaitTimeout = &cli.DurationFlag{
		Name:    "wait-timeout",
		Value:   30 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WAIT_TIMEOUT"),
		Usage:   "Timeout of every waitFor* command",
	}
	RetryDelay = &cli.DurationFlag{
		Name:    "retry-delay",
		Value:   time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRY_DELAY"),
		Usage:   "Delay between two attempts to reach the browser server",
	}
	CloseRetries = &cli.IntFlag{
		Name:    "close-retries",
		Value:   10,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CLOSE_RETRIES"),
		Usage:   "Number of attempts to close a browser session",
	}
	ResultsFile = &cli.StringFlag{
		Name:    "results-file",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_FILE"),
		Usage:   "Path to write the JUnit XML report to, in addition to the run directory",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory to store run logs and reports",
	}
	ScreenshotDir = &cli.StringFlag{
		Name:    "screenshot-dir",
		Value:   "screenshots",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCREENSHOT_DIR"),
		Usage:   "Directory to store failure screenshots. Empty disables screenshots",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates while a run is in progress",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the /healthz endpoint. Empty disables it",
	}
)

var requiredFlags = []cli.Flag{
	BaseURL,
}

var optionalFlags = []cli.Flag{
	TestCase,
	TestSuite,
	ServerHost,
	ServerPort,
	Capabilities,
	CapabilitiesFile,
	CommandInterval,
	StartInterval,
	WaitTimeout,
	RetryDelay,
	CloseRetries,
	ResultsFile,
	LogDir,
	ScreenshotDir,
	RunInterval,
	ShowProgress,
	ProgressInterval,
	HealthzAddr,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

var ErrSourceRequired = errors.New("exactly one of --test-case or --test-suite is required")

// CheckRequired verifies the required flags and that exactly one test source
// is given.
func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if (ctx.String(TestCase.Name) == "") == (ctx.String(TestSuite.Name) == "") {
		return ErrSourceRequired
	}
	return nil
}
