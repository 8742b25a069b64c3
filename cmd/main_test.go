package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	opselenese "github.com/ethereum-optimism/infra/op-selenese"
	"github.com/ethereum-optimism/infra/op-selenese/exitcodes"
)

func runCapturing(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp()
	var handled error
	app.ExitErrHandler = func(c *cli.Context, err error) {
		handled = err
	}
	err := app.RunContext(context.Background(), append([]string{"op-selenese"}, args...))
	if err == nil {
		err = handled
	}
	return err
}

func TestMissingTestDocumentIsRuntimeError(t *testing.T) {
	dir := t.TempDir()
	err := runCapturing(t,
		"--base-url", "http://localhost:8080",
		"--test-case", filepath.Join(dir, "missing.html"),
		"--log-dir", dir,
		"--healthz.addr", "",
	)
	require.Error(t, err)
	assert.True(t, opselenese.IsRuntimeError(err))
	assert.Equal(t, exitcodes.RuntimeErr, opselenese.ExitCode(err))
}

func TestMissingSourceIsRuntimeError(t *testing.T) {
	err := runCapturing(t, "--base-url", "http://localhost:8080")
	require.Error(t, err)
	assert.True(t, opselenese.IsRuntimeError(err))
	assert.Contains(t, err.Error(), "--test-case or --test-suite")
}

func TestAppMetadata(t *testing.T) {
	app := newApp()
	assert.Equal(t, "op-selenese", app.Name)
	assert.Contains(t, app.Version, Version)
	assert.NotEmpty(t, app.Flags)
}
