// Package exitcodes defines the process exit codes of op-selenese.
package exitcodes

// A run-once invocation exits with:
//
//   - Success (0) when no run failed an assertion
//   - TestFailure (1) when at least one run failed an assertion
//   - RuntimeErr (2) on configuration, loading or orchestration errors
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
