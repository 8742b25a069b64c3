package selenese

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

var (
	// ErrUnreachable is returned by a Dialer when the remote browser server
	// cannot be reached yet. Session acquisition retries on it.
	ErrUnreachable = errors.New("remote browser unreachable")
	// ErrCapabilitiesNotFound is returned by a Dialer when no browser matches
	// the desired capabilities. It is never retried.
	ErrCapabilitiesNotFound = errors.New("no remote browser matches the desired capabilities")
	// ErrSessionDead marks errors after which the session cannot be quit.
	ErrSessionDead = errors.New("remote browser session is dead")
)

var sessionDeadSignatures = []*regexp.Regexp{
	regexp.MustCompile(`Session \[[0-9A-Za-z-]+\] was terminated due to TIMEOUT`),
	regexp.MustCompile(`Error communicating with the remote browser\. It may have died\.`),
}

// IsSessionDead reports whether err indicates the remote session is already gone.
func IsSessionDead(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionDead) {
		return true
	}
	for _, re := range sessionDeadSignatures {
		if re.MatchString(err.Error()) {
			return true
		}
	}
	return false
}

// InvalidArgumentError is raised for an unparsable locator, pattern or argument.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Reason)
}

// UnknownActionError is raised for a command whose name is not in the action table.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// InvalidCommandError is raised when a command cannot be constructed.
type InvalidCommandError struct {
	Command string
	Reason  string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %s: %s", e.Command, e.Reason)
}

// AssertionError is an expectation that did not hold.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

func assertionf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

type ElementNotFoundError struct {
	Locator string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %s not found", e.Locator)
}

type TooManyElementsError struct {
	Locator string
	Count   int
}

func (e *TooManyElementsError) Error() string {
	return fmt.Sprintf("%d elements found for %s, expected exactly one", e.Count, e.Locator)
}

// WaitTimeoutError is returned by waitFor* actions whose condition never held.
type WaitTimeoutError struct {
	Timeout time.Duration
	Last    error
}

func (e *WaitTimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("timed out after %s", e.Timeout)
	}
	return fmt.Sprintf("timed out after %s: %v", e.Timeout, e.Last)
}

func (e *WaitTimeoutError) Unwrap() error {
	return e.Last
}

// Classify attributes err to the test definition, the page under test or
// the environment.
func Classify(err error) types.Cause {
	if err == nil {
		return types.CauseNone
	}
	var (
		invalidArg    *InvalidArgumentError
		unknownAction *UnknownActionError
		invalidCmd    *InvalidCommandError
	)
	if errors.As(err, &invalidArg) || errors.As(err, &unknownAction) || errors.As(err, &invalidCmd) {
		return types.CauseAuthoring
	}
	var (
		assertion *AssertionError
		notFound  *ElementNotFoundError
		tooMany   *TooManyElementsError
		timeout   *WaitTimeoutError
	)
	if errors.As(err, &assertion) || errors.As(err, &notFound) || errors.As(err, &tooMany) || errors.As(err, &timeout) {
		return types.CauseAssertion
	}
	return types.CauseEnvironment
}
