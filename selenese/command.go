package selenese

import (
	"fmt"
	"strings"
)

// Command is one Selenese instruction. It is immutable once built.
type Command struct {
	action Action
	args   []string
}

// NewCommand looks up the named action and builds a command from the raw
// arguments. Missing trailing arguments are padded with empty strings.
func NewCommand(name string, args ...string) (*Command, error) {
	a, err := LookupAction(name)
	if err != nil {
		return nil, err
	}
	return NewActionCommand(a, args...)
}

// NewActionCommand builds a command for an already resolved action.
func NewActionCommand(a Action, args ...string) (*Command, error) {
	if len(args) > a.ArgumentCount {
		return nil, &InvalidCommandError{
			Command: render(a.Name, args),
			Reason:  fmt.Sprintf("%s takes %d argument(s), got %d", a.Name, a.ArgumentCount, len(args)),
		}
	}
	padded := make([]string, a.ArgumentCount)
	copy(padded, args)
	return &Command{action: a, args: padded}, nil
}

func (c *Command) Action() Action {
	return c.action
}

func (c *Command) Name() string {
	return c.action.Name
}

// Args returns a copy of the raw, unsubstituted arguments.
func (c *Command) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// Resolve substitutes variables in every argument.
func (c *Command) Resolve(vars *Variables) ([]string, error) {
	out := make([]string, len(c.args))
	for i, arg := range c.args {
		v, err := vars.Substitute(arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// String renders the command with its raw arguments, e.g. type(id=user, ${name}).
func (c *Command) String() string {
	return render(c.action.Name, c.args)
}

// CompiledString renders the command with variables substituted.
func (c *Command) CompiledString(vars *Variables) (string, error) {
	args, err := c.Resolve(vars)
	if err != nil {
		return "", err
	}
	return render(c.action.Name, args), nil
}

func render(name string, args []string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}

// TestCase is a named, ordered list of commands.
type TestCase struct {
	Name     string
	Commands []*Command
}

// TestSuite is an ordered list of test cases.
type TestSuite struct {
	Name  string
	Cases []*TestCase
}
