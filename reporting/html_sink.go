package reporting

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const HTMLResultsFilename = "results.html"

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// templateFuncs returns the functions available to report templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"statusClass":    statusClass,
		"statusText": func(status types.TestStatus) string {
			return getStatusDisplay(status).Text
		},
	}
}

func statusClass(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "pass"
	case types.TestStatusFail:
		return "fail"
	case types.TestStatusError:
		return "error"
	default:
		return "unknown"
	}
}

type htmlRun struct {
	Name       string
	Status     types.TestStatus
	Duration   time.Duration
	Commands   int
	Message    string
	TraceFile  string
	Screenshot string
}

type htmlConfiguration struct {
	Name string
	Runs []htmlRun
}

type htmlReport struct {
	*Summary
	Passed, Failed, Errored int
	Configurations          []htmlConfiguration
}

// HTMLSink renders results.html into the run directory, linking every run to
// its trace file.
type HTMLSink struct {
	tmpl    *template.Template
	baseDir string
	suite   string

	mu      sync.Mutex
	started map[string]time.Time
	records map[string][]*types.RunRecord
}

func NewHTMLSink(baseDir, suite string) (*HTMLSink, error) {
	tmpl, err := template.New("results.html.tmpl").Funcs(templateFuncs()).ParseFS(templateFS, "templates/results.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLSink{
		tmpl:    tmpl,
		baseDir: baseDir,
		suite:   suite,
		started: make(map[string]time.Time),
		records: make(map[string][]*types.RunRecord),
	}, nil
}

func (s *HTMLSink) Consume(record *types.RunRecord, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start, ok := s.started[runID]; !ok || record.Started.Before(start) {
		s.started[runID] = record.Started
	}
	s.records[runID] = append(s.records[runID], record)
	return nil
}

func (s *HTMLSink) Complete(runID string) error {
	s.mu.Lock()
	records := s.records[runID]
	start := s.started[runID]
	delete(s.records, runID)
	delete(s.started, runID)
	s.mu.Unlock()

	if start.IsZero() {
		start = time.Now()
	}
	summary := &Summary{
		RunID:     runID,
		Suite:     s.suite,
		Timestamp: start,
		Duration:  time.Since(start),
		Status:    StatusOf(records),
		Records:   records,
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, buildHTMLReport(summary)); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}

	outputDir := logging.RunDirectory(s.baseDir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, HTMLResultsFilename), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

func buildHTMLReport(s *Summary) *htmlReport {
	report := &htmlReport{Summary: s}
	report.Passed, report.Failed, report.Errored = s.counts()
	order, groups := s.byConfiguration()
	for _, caps := range order {
		cfg := htmlConfiguration{Name: caps}
		for _, rec := range groups[caps] {
			run := htmlRun{
				Name:       rec.TestName,
				Status:     rec.Outcome.Status,
				Duration:   rec.Duration,
				Commands:   len(rec.Commands),
				TraceFile:  filepath.ToSlash(logging.TraceFilePath(rec)),
				Screenshot: rec.Screenshot,
			}
			if !rec.Outcome.Succeeded() {
				run.Message = stripansi.Strip(rec.Outcome.Message)
			}
			cfg.Runs = append(cfg.Runs, run)
		}
		report.Configurations = append(report.Configurations, cfg)
	}
	return report
}
