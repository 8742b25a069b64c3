package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

type recordingSink struct {
	consumed  []*types.RunRecord
	completed []string
	err       error
}

func (s *recordingSink) Consume(record *types.RunRecord, runID string) error {
	s.consumed = append(s.consumed, record)
	return s.err
}

func (s *recordingSink) Complete(runID string) error {
	s.completed = append(s.completed, runID)
	return nil
}

func passRecord() *types.RunRecord {
	return &types.RunRecord{
		ID:           "1",
		TestName:     "login",
		Suite:        "smoke",
		Capabilities: types.Capabilities{Browser: "chrome", Platform: "LINUX"},
		SessionID:    "abc",
		Outcome:      types.SuccessOutcome(),
		Commands: []types.CommandTrace{
			{Index: 0, Command: "open(/login, )", Compiled: "open(/login, )", Duration: 20 * time.Millisecond},
			{Index: 1, Command: "type(name=user, ${user})", Compiled: "type(name=user, alice)", Duration: 5 * time.Millisecond},
		},
		Duration: time.Second,
	}
}

func failRecord() *types.RunRecord {
	return &types.RunRecord{
		ID:       "2",
		TestName: "checkout",
		Suite:    "smoke",
		Outcome: types.Outcome{
			Status:       types.TestStatusFail,
			Cause:        types.CauseAssertion,
			Message:      "assertTitle(Cart, ): \"Home\" does not match Cart",
			CommandIndex: 0,
		},
		Commands: []types.CommandTrace{
			{Index: 0, Command: "assertTitle(Cart, )", Compiled: "assertTitle(Cart, )", Error: "\"Home\" does not match Cart"},
		},
		Screenshot: "/tmp/shots/checkout.png",
	}
}

func TestFileLogger(t *testing.T) {
	tmpDir := t.TempDir()
	extra := &recordingSink{}
	logger, err := NewFileLogger(tmpDir, "run-1", extra)
	require.NoError(t, err)

	dir, err := logger.GetDirectoryForRunID("run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "testrun-run-1"), dir)
	assert.DirExists(t, filepath.Join(dir, "passed"))
	assert.DirExists(t, filepath.Join(dir, "failed"))

	pass, fail := passRecord(), failRecord()
	require.NoError(t, logger.Consume(pass, "run-1"))
	require.NoError(t, logger.Consume(fail, "run-1"))
	require.NoError(t, logger.Complete("run-1"))

	assert.Equal(t, []*types.RunRecord{pass, fail}, extra.consumed)
	assert.Equal(t, []string{"run-1"}, extra.completed)

	all, err := os.ReadFile(filepath.Join(dir, AllLogsFilename))
	require.NoError(t, err)
	assert.Contains(t, string(all), "TEST: login")
	assert.Contains(t, string(all), "TEST: checkout")
	assert.Contains(t, string(all), "ERROR (assertion)")
	assert.Contains(t, string(all), "=> type(name=user, alice)")

	passTrace, err := os.ReadFile(filepath.Join(dir, "passed", "login@chrome_on_LINUX.log"))
	require.NoError(t, err)
	assert.Contains(t, string(passTrace), "Session: abc")
	assert.Contains(t, string(passTrace), "[001] type(name=user, ${user})")

	failTrace, err := os.ReadFile(filepath.Join(dir, "failed", "checkout@Any_browser.log"))
	require.NoError(t, err)
	assert.Contains(t, string(failTrace), "Screenshot: /tmp/shots/checkout.png")
	assert.Contains(t, string(failTrace), "!! \"Home\" does not match Cart")
}

func TestFileLoggerValidation(t *testing.T) {
	_, err := NewFileLogger(t.TempDir(), "")
	require.Error(t, err)
	_, err = NewFileLogger("", "run")
	require.Error(t, err)

	logger, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)
	require.Error(t, logger.Consume(passRecord(), ""))
	require.Error(t, logger.Complete(""))
}

func TestFileLoggerSinkError(t *testing.T) {
	boom := errors.New("boom")
	logger, err := NewFileLogger(t.TempDir(), "run", &recordingSink{err: boom})
	require.NoError(t, err)
	require.ErrorIs(t, logger.Consume(passRecord(), "run"), boom)
}

func TestAsyncFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	af, err := NewAsyncFile(path)
	require.NoError(t, err)
	require.NoError(t, af.Write([]byte("one\n")))
	require.NoError(t, af.Write([]byte("two\n")))
	require.NoError(t, af.Close())
	require.Error(t, af.Write([]byte("three\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		"login@Any browser":     "login@Any_browser",
		"a/b\\c:d*e?f\"g<h>i|j": "a_b_c_d_e_f_g_h_i_j",
		"wait...":               "wait",
		"\x1b[31mred\x1b[0m":    "red",
		"chrome 120 on WINDOWS": "chrome_120_on_WINDOWS",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeFilename(in), in)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklm", 10))

	got := truncateString("connexion ééééééééééé", 12)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "connexion...", got)
	assert.Equal(t, "été", truncateString("été", 3))
	assert.Equal(t, "déj...", truncateString("déjà vu", 6))
}
