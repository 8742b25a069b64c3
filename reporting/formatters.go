package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// StatusDisplay represents display information for a test status
type StatusDisplay struct {
	Text   string
	Symbol string
}

func getStatusDisplay(status types.TestStatus) StatusDisplay {
	switch status {
	case types.TestStatusPass:
		return StatusDisplay{Text: "PASS", Symbol: "✓"}
	case types.TestStatusFail:
		return StatusDisplay{Text: "FAIL", Symbol: "✗"}
	case types.TestStatusError:
		return StatusDisplay{Text: "ERROR", Symbol: "!"}
	default:
		return StatusDisplay{Text: "UNKNOWN", Symbol: "?"}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// Summary is the data a report is rendered from.
type Summary struct {
	RunID     string
	Suite     string
	Timestamp time.Time
	Duration  time.Duration
	Status    types.TestStatus
	Records   []*types.RunRecord
}

func (s *Summary) counts() (passed, failed, errored int) {
	for _, rec := range s.Records {
		switch rec.Outcome.Status {
		case types.TestStatusPass:
			passed++
		case types.TestStatusFail:
			failed++
		case types.TestStatusError:
			errored++
		}
	}
	return
}

// byConfiguration groups records by browser configuration in first-seen order.
func (s *Summary) byConfiguration() ([]string, map[string][]*types.RunRecord) {
	var order []string
	groups := make(map[string][]*types.RunRecord)
	for _, rec := range s.Records {
		caps := rec.Capabilities.String()
		if _, ok := groups[caps]; !ok {
			order = append(order, caps)
		}
		groups[caps] = append(groups[caps], rec)
	}
	return order, groups
}

// TextSummaryFormatter renders a plain text summary
type TextSummaryFormatter struct {
	includeDetails bool
}

func NewTextSummaryFormatter(includeDetails bool) *TextSummaryFormatter {
	return &TextSummaryFormatter{includeDetails: includeDetails}
}

func (tsf *TextSummaryFormatter) Format(s *Summary) (string, error) {
	var summary strings.Builder
	passed, failed, errored := s.counts()

	fmt.Fprintf(&summary, "TEST SUMMARY\n")
	fmt.Fprintf(&summary, "============\n")
	fmt.Fprintf(&summary, "Run ID: %s\n", s.RunID)
	if s.Suite != "" {
		fmt.Fprintf(&summary, "Suite: %s\n", s.Suite)
	}
	fmt.Fprintf(&summary, "Time: %s\n", s.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&summary, "Duration: %s\n\n", formatDuration(s.Duration))

	fmt.Fprintf(&summary, "Results:\n")
	fmt.Fprintf(&summary, "  Total:   %d\n", len(s.Records))
	fmt.Fprintf(&summary, "  Passed:  %d\n", passed)
	fmt.Fprintf(&summary, "  Failed:  %d\n", failed)
	fmt.Fprintf(&summary, "  Errors:  %d\n", errored)
	fmt.Fprintf(&summary, "\n")

	var failures, errs []string
	for _, rec := range s.Records {
		switch rec.Outcome.Status {
		case types.TestStatusFail:
			failures = append(failures, fmt.Sprintf("%s: %s", rec.DisplayName(), rec.Outcome.Summary()))
		case types.TestStatusError:
			errs = append(errs, fmt.Sprintf("%s (%s): %s", rec.DisplayName(), rec.Outcome.Cause, rec.Outcome.Summary()))
		}
	}
	if len(failures) > 0 {
		fmt.Fprintf(&summary, "Failed tests:\n")
		for _, f := range failures {
			fmt.Fprintf(&summary, "  - %s\n", f)
		}
		fmt.Fprintf(&summary, "\n")
	}
	if len(errs) > 0 {
		fmt.Fprintf(&summary, "Errored tests:\n")
		for _, e := range errs {
			fmt.Fprintf(&summary, "  - %s\n", e)
		}
		fmt.Fprintf(&summary, "\n")
	}

	if tsf.includeDetails {
		fmt.Fprintf(&summary, "DETAILED RESULTS:\n")
		fmt.Fprintf(&summary, "=================\n")
		order, groups := s.byConfiguration()
		for _, caps := range order {
			fmt.Fprintf(&summary, "Configuration: %s\n", caps)
			for _, rec := range groups[caps] {
				fmt.Fprintf(&summary, "  - %s (%s) [%s]\n", rec.TestName, formatDuration(rec.Duration),
					getStatusDisplay(rec.Outcome.Status).Text)
			}
			fmt.Fprintf(&summary, "\n")
		}
	}
	return summary.String(), nil
}

// TableFormatter renders a results table, one block per browser configuration.
type TableFormatter struct {
	title string
}

func NewTableFormatter(title string) *TableFormatter {
	return &TableFormatter{title: title}
}

func (tf *TableFormatter) Format(s *Summary) (string, error) {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s (%s)", tf.title, formatDuration(s.Duration)))
	t.AppendHeader(table.Row{
		"Configuration", "Test", "Duration", "Commands", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Configuration", AutoMerge: true},
		{Name: "Test", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Commands", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	order, groups := s.byConfiguration()
	for _, caps := range order {
		recs := groups[caps]
		for i, rec := range recs {
			prefix := "├─"
			if i == len(recs)-1 {
				prefix = "└─"
			}
			errText := ""
			if !rec.Outcome.Succeeded() {
				errText = rec.Outcome.Summary()
			}
			t.AppendRow(table.Row{
				caps,
				fmt.Sprintf("%s %s", prefix, rec.TestName),
				formatDuration(rec.Duration),
				len(rec.Commands),
				getStatusDisplay(rec.Outcome.Status).Text,
				errText,
			})
		}
		t.AppendSeparator()
	}

	switch s.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusError:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	passed, failed, errored := s.counts()
	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed, %d errors", passed, failed, errored),
		formatDuration(s.Duration),
		"",
		getStatusDisplay(s.Status).Text,
		"",
	})
	return t.Render(), nil
}
