package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-selenese/logging"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// TextSummarySink writes summary.log into the run directory once a run completes.
type TextSummarySink struct {
	formatter *TextSummaryFormatter
	baseDir   string
	suite     string
	mu        sync.Mutex
	started   map[string]time.Time
	records   map[string][]*types.RunRecord
}

func NewTextSummarySink(baseDir, suite string, includeDetails bool) *TextSummarySink {
	return &TextSummarySink{
		formatter: NewTextSummaryFormatter(includeDetails),
		baseDir:   baseDir,
		suite:     suite,
		started:   make(map[string]time.Time),
		records:   make(map[string][]*types.RunRecord),
	}
}

// Consume collects records for later summary generation
func (s *TextSummarySink) Consume(record *types.RunRecord, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start, ok := s.started[runID]; !ok || record.Started.Before(start) {
		s.started[runID] = record.Started
	}
	s.records[runID] = append(s.records[runID], record)
	return nil
}

func (s *TextSummarySink) Complete(runID string) error {
	s.mu.Lock()
	records := s.records[runID]
	start, ok := s.started[runID]
	delete(s.records, runID)
	delete(s.started, runID)
	s.mu.Unlock()

	now := time.Now()
	if !ok {
		start = now
	}
	summary := &Summary{
		RunID:     runID,
		Suite:     s.suite,
		Timestamp: now,
		Duration:  now.Sub(start),
		Status:    StatusOf(records),
		Records:   records,
	}
	content, err := s.formatter.Format(summary)
	if err != nil {
		return fmt.Errorf("failed to format text summary: %w", err)
	}

	outputDir := logging.RunDirectory(s.baseDir, runID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, logging.SummaryFilename), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// StatusOf folds record outcomes into one status: any failure fails, then
// any error errors.
func StatusOf(records []*types.RunRecord) types.TestStatus {
	status := types.TestStatusPass
	for _, rec := range records {
		switch rec.Outcome.Status {
		case types.TestStatusFail:
			return types.TestStatusFail
		case types.TestStatusError:
			status = types.TestStatusError
		}
	}
	return status
}
