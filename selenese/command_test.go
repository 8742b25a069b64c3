package selenese

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

func TestLookupAction(t *testing.T) {
	a, err := LookupAction("type")
	require.NoError(t, err)
	assert.Equal(t, 2, a.ArgumentCount)

	_, err = LookupAction("frobnicate")
	var unknown *UnknownActionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "frobnicate", unknown.Name)
}

func TestActionsSorted(t *testing.T) {
	list := Actions()
	require.Len(t, list, len(actions))
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}
}

func TestNewCommandArity(t *testing.T) {
	_, err := NewCommand("type", "id=a", "b", "c")
	var invalid *InvalidCommandError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, types.CauseAuthoring, Classify(err))

	cmd, err := NewCommand("type")
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, cmd.Args())

	cmd, err = NewCommand("type", "id=a")
	require.NoError(t, err)
	assert.Equal(t, []string{"id=a", ""}, cmd.Args())
}

func TestCommandArgsAreCopied(t *testing.T) {
	cmd, err := NewCommand("open", "/login")
	require.NoError(t, err)
	args := cmd.Args()
	args[0] = "/elsewhere"
	assert.Equal(t, "/login", cmd.Args()[0])
}

func TestCommandRendering(t *testing.T) {
	vars := NewVariables()
	vars.Set("name", "Bob")

	cmd, err := NewCommand("type", "id=user", "Hello ${name}!")
	require.NoError(t, err)
	assert.Equal(t, "type(id=user, Hello ${name}!)", cmd.String())

	compiled, err := cmd.CompiledString(vars)
	require.NoError(t, err)
	assert.Equal(t, "type(id=user, Hello Bob!)", compiled)

	_, err = cmd.CompiledString(NewVariables())
	require.Error(t, err)
}

func TestVariableSubstitution(t *testing.T) {
	vars := NewVariables()
	vars.Set("name", "Bob")
	vars.Set("greeting", "Hello ${name}")
	vars.Set("key", "name")

	tests := []struct {
		in   string
		want string
	}{
		{"Hello ${name}!", "Hello Bob!"},
		{"${greeting}, again", "Hello Bob, again"},
		{"${${key}}", "Bob"},
		{"no placeholders", "no placeholders"},
		{"$name {name}", "$name {name}"},
		{"${name}${name}", "BobBob"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := vars.Substitute(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVariableSubstitutionUnset(t *testing.T) {
	vars := NewVariables()
	vars.Set("name", "Bob")
	_, err := vars.Substitute("Hello ${nobody}!")
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Error(), "nobody")
	assert.Equal(t, "Hello ${nobody}!", invalid.Argument)
}

func TestVariableSubstitutionDoesNotLoop(t *testing.T) {
	vars := NewVariables()
	vars.Set("a", "${a}")
	_, err := vars.Substitute("${a}")
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "does not terminate")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.Cause
	}{
		{"nil", nil, types.CauseNone},
		{"invalid argument", &InvalidArgumentError{Argument: "x"}, types.CauseAuthoring},
		{"unknown action", fmt.Errorf("wrapped: %w", &UnknownActionError{Name: "x"}), types.CauseAuthoring},
		{"assertion", &AssertionError{Message: "nope"}, types.CauseAssertion},
		{"not found", &ElementNotFoundError{Locator: "id=x"}, types.CauseAssertion},
		{"too many", &TooManyElementsError{Locator: "id=x", Count: 2}, types.CauseAssertion},
		{"timeout", &WaitTimeoutError{Last: &AssertionError{}}, types.CauseAssertion},
		{"session", errors.New("connection reset"), types.CauseEnvironment},
		{"unreachable", fmt.Errorf("dial: %w", ErrUnreachable), types.CauseEnvironment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsSessionDead(t *testing.T) {
	assert.True(t, IsSessionDead(errors.New("Session [1234] was terminated due to TIMEOUT")))
	assert.True(t, IsSessionDead(errors.New("boom: Error communicating with the remote browser. It may have died.")))
	assert.True(t, IsSessionDead(fmt.Errorf("navigate: %w", ErrSessionDead)))
	assert.False(t, IsSessionDead(errors.New("element not found")))
	assert.False(t, IsSessionDead(nil))
}
