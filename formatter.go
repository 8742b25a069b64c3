package opselenese

import (
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-selenese/reporting"
	"github.com/ethereum-optimism/infra/op-selenese/runner"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(suite string, result *runner.RunnerResult) error
}

// ConsoleResultFormatter prints a results table followed by the result tree.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

func (f *ConsoleResultFormatter) FormatResults(suite string, result *runner.RunnerResult) error {
	f.logger.Info("Printing results...")
	summary := &reporting.Summary{
		RunID:     result.RunID,
		Suite:     suite,
		Timestamp: result.Stats.StartTime,
		Duration:  result.Duration,
		Status:    result.Status,
		Records:   result.Records,
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now()
	}
	rendered, err := reporting.NewTableFormatter("Selenese Results").Format(summary)
	if err != nil {
		return fmt.Errorf("failed to render results table: %w", err)
	}
	if _, err := fmt.Fprintln(f.out, rendered); err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.out, result.String())
	return err
}
