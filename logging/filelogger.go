package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
	AllLogsFilename    = "all.log"
)

// ResultSink is an interface for different ways of consuming run records
type ResultSink interface {
	// Consume processes a single terminated run
	Consume(record *types.RunRecord, runID string) error
	// Complete is called when all records have been consumed
	Complete(runID string) error
}

// RunDirectory returns the directory holding the artifacts of runID.
func RunDirectory(baseDir, runID string) string {
	return filepath.Join(baseDir, RunDirectoryPrefix+runID)
}

// FileLogger writes run output to files under a per-run directory and fans
// every record out to its sinks.
type FileLogger struct {
	baseDir      string                // Root log directory
	logDir       string                // Directory of the current run
	mu           sync.Mutex            // Protects asyncWriters
	sinks        []ResultSink          // Collection of record consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates the run directory for runID and registers the
// built-in sinks followed by extra.
func NewFileLogger(baseDir string, runID string, extra ...ResultSink) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := RunDirectory(baseDir, runID)
	for _, dir := range []string{baseDir, logDir, filepath.Join(logDir, "passed"), filepath.Join(logDir, "failed")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}
	logger.sinks = append(logger.sinks,
		&AllLogsFileSink{logger: logger},
		&TraceFileSink{logger: logger, written: make(map[string]bool)},
	)
	logger.sinks = append(logger.sinks, extra...)
	return logger, nil
}

func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close()
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// GetDirectoryForRunID returns the path for a specific runID
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	if runID == l.runID {
		return l.logDir, nil
	}
	return RunDirectory(l.baseDir, runID), nil
}

// Consume feeds record to every registered sink.
func (l *FileLogger) Consume(record *types.RunRecord, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	for _, sink := range l.sinks {
		if err := sink.Consume(record, runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// Complete finalizes all sinks and closes all file writers
func (l *FileLogger) Complete(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	defer l.closeAllWriters()
	for _, sink := range l.sinks {
		if err := sink.Complete(runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}
	return nil
}

// SafeFilename converts a string to a safe filename by replacing problematic characters
func SafeFilename(s string) string {
	s = stripansi.Strip(s)
	s = strings.ReplaceAll(s, "...", "")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

// RunFilename names the artifacts of one run, e.g. "login@Any_browser".
func RunFilename(record *types.RunRecord) string {
	return SafeFilename(record.TestName + "@" + record.Capabilities.String())
}

// TraceFilePath is the path of a run's trace file relative to the run
// directory.
func TraceFilePath(record *types.RunRecord) string {
	subdir := "passed"
	if !record.Outcome.Succeeded() {
		subdir = "failed"
	}
	return filepath.Join(subdir, RunFilename(record)+".log")
}

// AllLogsFileSink appends every record to a single all.log file
type AllLogsFileSink struct {
	logger *FileLogger
}

func (s *AllLogsFileSink) Consume(record *types.RunRecord, runID string) error {
	dir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	writer, err := s.logger.getAsyncWriter(filepath.Join(dir, AllLogsFilename))
	if err != nil {
		return err
	}

	var content strings.Builder
	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ TEST: %-62s │\n", truncateString(record.TestName, 62))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&content, "│ Status:   %-58s │\n", record.Outcome.Status)
	fmt.Fprintf(&content, "│ Browser:  %-58s │\n", truncateString(record.Capabilities.String(), 58))
	fmt.Fprintf(&content, "│ Suite:    %-58s │\n", truncateString(record.Suite, 58))
	fmt.Fprintf(&content, "│ Session:  %-58s │\n", truncateString(record.SessionID, 58))
	fmt.Fprintf(&content, "│ Duration: %-58s │\n", formatDuration(record.Duration))
	fmt.Fprintf(&content, "│ Time:     %-58s │\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n\n")

	if !record.Outcome.Succeeded() {
		fmt.Fprintf(&content, "ERROR (%s):\n", record.Outcome.Cause)
		fmt.Fprintf(&content, "~~~~~~\n")
		fmt.Fprintf(&content, "%s\n\n", record.Outcome.Message)
	}
	if len(record.Commands) > 0 {
		fmt.Fprintf(&content, "COMMANDS:\n")
		fmt.Fprintf(&content, "~~~~~~~~~\n")
		fmt.Fprintf(&content, "%s\n", indentText(formatCommands(record.Commands), "  "))
	}
	fmt.Fprintf(&content, "\n")
	return writer.Write([]byte(content.String()))
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// TraceFileSink writes the command log of every run to its own file in the
// passed or failed directory.
type TraceFileSink struct {
	logger  *FileLogger
	mu      sync.Mutex
	written map[string]bool
}

func (s *TraceFileSink) Consume(record *types.RunRecord, runID string) error {
	dir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, TraceFilePath(record))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	s.mu.Lock()
	if s.written[path] {
		s.mu.Unlock()
		return nil
	}
	s.written[path] = true
	s.mu.Unlock()

	var content strings.Builder
	fmt.Fprintf(&content, "%s\n", record.DisplayName())
	fmt.Fprintf(&content, "Status: %s\n", record.Outcome.Status)
	if record.SessionID != "" {
		fmt.Fprintf(&content, "Session: %s\n", record.SessionID)
	}
	fmt.Fprintf(&content, "Duration: %s\n", formatDuration(record.Duration))
	if record.Screenshot != "" {
		fmt.Fprintf(&content, "Screenshot: %s\n", record.Screenshot)
	}
	if !record.Outcome.Succeeded() {
		fmt.Fprintf(&content, "\n%s\n", record.Outcome.Message)
	}
	fmt.Fprintf(&content, "\n%s", formatCommands(record.Commands))

	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}
	return nil
}

func (s *TraceFileSink) Complete(runID string) error {
	return nil
}

func formatCommands(commands []types.CommandTrace) string {
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "[%03d] %s (%s)\n", c.Index, c.Command, formatDuration(c.Duration))
		if c.Compiled != c.Command {
			fmt.Fprintf(&b, "      => %s\n", c.Compiled)
		}
		if c.Error != "" {
			fmt.Fprintf(&b, "      !! %s\n", c.Error)
		}
	}
	return b.String()
}

func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString shortens s to at most maxLen runes, ending in "..." when cut.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
