package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const JUnitFilename = "junit.xml"

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitSink writes a JUnit XML report per run, one testsuite per browser
// configuration.
type JUnitSink struct {
	baseDir     string
	resultsFile string
	mu          sync.Mutex
	records     map[string][]*types.RunRecord
}

// NewJUnitSink returns a sink writing into the run directories under baseDir
// and, when resultsFile is not empty, to resultsFile as well.
func NewJUnitSink(baseDir, resultsFile string) *JUnitSink {
	return &JUnitSink{
		baseDir:     baseDir,
		resultsFile: resultsFile,
		records:     make(map[string][]*types.RunRecord),
	}
}

func (s *JUnitSink) Consume(record *types.RunRecord, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[runID] = append(s.records[runID], record)
	return nil
}

// Complete writes <baseDir>/testrun-<runID>/junit.xml and the results file.
func (s *JUnitSink) Complete(runID string) error {
	s.mu.Lock()
	records := s.records[runID]
	delete(s.records, runID)
	s.mu.Unlock()

	report := BuildJUnitReport(runID, records)
	data, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode junit report: %w", err)
	}

	outputDir := logging.RunDirectory(s.baseDir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	data = append([]byte(xml.Header), data...)
	paths := []string{filepath.Join(outputDir, JUnitFilename)}
	if s.resultsFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.resultsFile), 0755); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
		paths = append(paths, s.resultsFile)
	}
	for _, path := range paths {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write junit report %s: %w", path, err)
		}
	}
	return nil
}

// BuildJUnitReport groups records by browser configuration, keeping the
// order in which configurations first appear.
func BuildJUnitReport(runID string, records []*types.RunRecord) *junitTestSuites {
	report := &junitTestSuites{Name: runID}
	index := make(map[string]int)
	var total time.Duration

	for _, rec := range records {
		caps := rec.Capabilities.String()
		i, ok := index[caps]
		if !ok {
			i = len(report.Suites)
			index[caps] = i
			report.Suites = append(report.Suites, junitTestSuite{Name: caps})
		}
		suite := &report.Suites[i]

		tc := junitTestCase{
			Name:      rec.TestName,
			Classname: classname(rec),
			Time:      seconds(rec.Duration),
		}
		msg := stripansi.Strip(rec.Outcome.Summary())
		body := stripansi.Strip(rec.Outcome.Message)
		switch rec.Outcome.Status {
		case types.TestStatusFail:
			tc.Failure = &junitMessage{Message: msg, Type: string(rec.Outcome.Cause), Body: body}
			suite.Failures++
			report.Failures++
		case types.TestStatusError:
			tc.Error = &junitMessage{Message: msg, Type: string(rec.Outcome.Cause), Body: body}
			suite.Errors++
			report.Errors++
		}
		if rec.Screenshot != "" {
			tc.SystemOut = "screenshot: " + rec.Screenshot
		}
		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
		report.Tests++
		total += rec.Duration
	}

	for i := range report.Suites {
		var d time.Duration
		for _, rec := range records {
			if rec.Capabilities.String() == report.Suites[i].Name {
				d += rec.Duration
			}
		}
		report.Suites[i].Time = seconds(d)
	}
	report.Time = seconds(total)
	return report
}

func classname(rec *types.RunRecord) string {
	if rec.Suite == "" {
		return "selenese"
	}
	return rec.Suite
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
