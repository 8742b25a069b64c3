package reporting

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

var chrome = types.Capabilities{Browser: "chrome"}

func sampleRecords() []*types.RunRecord {
	return []*types.RunRecord{
		{
			TestName:     "home",
			Suite:        "smoke",
			Capabilities: chrome,
			Outcome:      types.SuccessOutcome(),
			Commands:     make([]types.CommandTrace, 2),
			Duration:     1500 * time.Millisecond,
		},
		{
			TestName:     "cart",
			Suite:        "smoke",
			Capabilities: chrome,
			Outcome: types.Outcome{
				Status:       types.TestStatusFail,
				Cause:        types.CauseAssertion,
				Message:      "assertEval(document.title, Cart): \x1b[31m\"Home\"\x1b[0m does not match Cart\nmore detail",
				CommandIndex: 1,
			},
			Screenshot: "/shots/cart.png",
			Duration:   time.Second,
		},
		{
			TestName: "cart",
			Suite:    "smoke",
			Outcome: types.Outcome{
				Status:  types.TestStatusError,
				Cause:   types.CauseEnvironment,
				Message: "session initialization: remote browser unreachable",
			},
			Duration: 200 * time.Millisecond,
		},
	}
}

func TestBuildJUnitReport(t *testing.T) {
	report := BuildJUnitReport("run-1", sampleRecords())

	assert.Equal(t, "run-1", report.Name)
	assert.Equal(t, 3, report.Tests)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, "2.700", report.Time)

	require.Len(t, report.Suites, 2)
	assert.Equal(t, "chrome", report.Suites[0].Name)
	assert.Equal(t, 2, report.Suites[0].Tests)
	assert.Equal(t, "2.500", report.Suites[0].Time)
	assert.Equal(t, "Any browser", report.Suites[1].Name)

	failure := report.Suites[0].Cases[1].Failure
	require.NotNil(t, failure)
	assert.Equal(t, "assertEval(document.title, Cart): \"Home\" does not match Cart", failure.Message)
	assert.Equal(t, "assertion", failure.Type)
	assert.Equal(t, "screenshot: /shots/cart.png", report.Suites[0].Cases[1].SystemOut)

	assert.Nil(t, report.Suites[1].Cases[0].Failure)
	require.NotNil(t, report.Suites[1].Cases[0].Error)
	assert.Equal(t, "environment", report.Suites[1].Cases[0].Error.Type)
}

func TestJUnitSink(t *testing.T) {
	dir := t.TempDir()
	resultsFile := filepath.Join(dir, "reports", "selenese.xml")
	sink := NewJUnitSink(dir, resultsFile)
	for _, rec := range sampleRecords() {
		require.NoError(t, sink.Consume(rec, "run-1"))
	}
	require.NoError(t, sink.Complete("run-1"))

	data, err := os.ReadFile(filepath.Join(logging.RunDirectory(dir, "run-1"), JUnitFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), xml.Header)
	copied, err := os.ReadFile(resultsFile)
	require.NoError(t, err)
	assert.Equal(t, data, copied)

	var decoded junitTestSuites
	require.NoError(t, xml.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.Tests)
	require.Len(t, decoded.Suites, 2)
	assert.Equal(t, "smoke", decoded.Suites[0].Cases[0].Classname)
}

func TestTextSummarySink(t *testing.T) {
	dir := t.TempDir()
	sink := NewTextSummarySink(dir, "smoke", true)
	for _, rec := range sampleRecords() {
		require.NoError(t, sink.Consume(rec, "run-1"))
	}
	require.NoError(t, sink.Complete("run-1"))

	data, err := os.ReadFile(filepath.Join(logging.RunDirectory(dir, "run-1"), logging.SummaryFilename))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Run ID: run-1")
	assert.Contains(t, content, "Suite: smoke")
	assert.Contains(t, content, "Total:   3")
	assert.Contains(t, content, "Failed:  1")
	assert.Contains(t, content, "Errors:  1")
	assert.Contains(t, content, "- Test case [cart @ chrome]: assertEval(document.title, Cart)")
	assert.Contains(t, content, "- Test case [cart @ Any browser] (environment): session initialization")
	assert.Contains(t, content, "Configuration: chrome")
	assert.Contains(t, content, "- home (1.5s) [PASS]")
}

func TestTextSummarySinkEmptyRun(t *testing.T) {
	dir := t.TempDir()
	sink := NewTextSummarySink(dir, "", false)
	require.NoError(t, sink.Complete("empty"))

	data, err := os.ReadFile(filepath.Join(logging.RunDirectory(dir, "empty"), logging.SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Total:   0")
	assert.NotContains(t, string(data), "Suite:")
}

func TestStatusOf(t *testing.T) {
	records := sampleRecords()
	assert.Equal(t, types.TestStatusFail, StatusOf(records))
	assert.Equal(t, types.TestStatusError, StatusOf([]*types.RunRecord{records[0], records[2]}))
	assert.Equal(t, types.TestStatusPass, StatusOf(records[:1]))
	assert.Equal(t, types.TestStatusPass, StatusOf(nil))
}

func TestTableFormatter(t *testing.T) {
	out, err := NewTableFormatter("Selenese Results").Format(&Summary{
		RunID:    "run-1",
		Duration: 3 * time.Second,
		Status:   types.TestStatusFail,
		Records:  sampleRecords(),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Selenese Results (3s)")
	assert.Contains(t, out, "└─ cart")
	assert.Contains(t, strings.ToUpper(out), "1 PASSED, 1 FAILED, 1 ERRORS")
	assert.Contains(t, out, "FAIL")
}

func TestHTMLSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewHTMLSink(dir, "smoke")
	require.NoError(t, err)
	for _, rec := range sampleRecords() {
		require.NoError(t, sink.Consume(rec, "run-1"))
	}
	require.NoError(t, sink.Complete("run-1"))

	data, err := os.ReadFile(filepath.Join(logging.RunDirectory(dir, "run-1"), HTMLResultsFilename))
	require.NoError(t, err)
	page := string(data)

	assert.Contains(t, page, "smoke: FAIL")
	assert.Contains(t, page, "1 passed, 1 failed, 1 errors")
	assert.Contains(t, page, `href="passed/home@chrome.log"`)
	assert.Contains(t, page, `href="failed/cart@chrome.log"`)
	assert.Contains(t, page, `href="failed/cart@Any_browser.log"`)
	assert.Contains(t, page, `href="/shots/cart.png"`)
	assert.NotContains(t, page, "\x1b[31m")
	assert.Less(t, strings.Index(page, "<h2>chrome</h2>"), strings.Index(page, "<h2>Any browser</h2>"))
}

func TestHTMLSinkEmptyRun(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewHTMLSink(dir, "smoke")
	require.NoError(t, err)
	require.NoError(t, sink.Complete("empty"))
	assert.FileExists(t, filepath.Join(logging.RunDirectory(dir, "empty"), HTMLResultsFilename))
}
