package types

import (
	"strings"
	"time"
)

// TestStatus represents the possible terminal states of a test case run
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusError TestStatus = "error"
)

// Cause attributes a non-passing outcome to its origin
type Cause string

const (
	CauseNone        Cause = ""
	CauseAssertion   Cause = "assertion"   // a correctness check did not hold
	CauseAuthoring   Cause = "authoring"   // the test definition itself is broken
	CauseEnvironment Cause = "environment" // browser, session or transport failure
)

// NoCommand is the command index of outcomes not attributable to a command
const NoCommand = -1

// Outcome is the verdict of one test case run.
type Outcome struct {
	Status       TestStatus
	Cause        Cause
	Message      string
	CommandIndex int
	Err          error
}

// SuccessOutcome returns the outcome of a run in which no command failed.
func SuccessOutcome() Outcome {
	return Outcome{Status: TestStatusPass, CommandIndex: NoCommand}
}

func (o Outcome) Succeeded() bool { return o.Status == TestStatusPass }
func (o Outcome) Failed() bool    { return o.Status == TestStatusFail }
func (o Outcome) Errored() bool   { return o.Status == TestStatusError }

// Summary returns the first line of the outcome message
func (o Outcome) Summary() string {
	msg, _, _ := strings.Cut(o.Message, "\n")
	return msg
}

// CommandTrace is one executed command in a run's command log
type CommandTrace struct {
	Index    int
	Command  string // raw arguments, as authored
	Compiled string // arguments after variable substitution
	Duration time.Duration
	Error    string
}

// RunRecord is everything known about one (test case x capabilities) run
// once it has terminated.
type RunRecord struct {
	ID           string
	TestName     string
	Suite        string
	Capabilities Capabilities
	SessionID    string
	Outcome      Outcome
	Commands     []CommandTrace
	Screenshot   string
	Started      time.Time
	Duration     time.Duration
}

// DisplayName renders the run the way it is reported on the console
func (r *RunRecord) DisplayName() string {
	return "Test case [" + r.TestName + " @ " + r.Capabilities.String() + "]"
}
