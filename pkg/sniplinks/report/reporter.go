// Package report is the error-reporting channel for failures that cannot be
// returned to a caller, such as background click recording.
package report

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Reporter receives errors together with the operation that failed and
// optional key/value context.
type Reporter interface {
	Report(err error, op string, fields ...any)
}

// LogReporter writes one line per error with the caller's file and line.
type LogReporter struct {
	logger *log.Logger
}

// NewLogReporter writes to w. A nil writer means stderr.
func NewLogReporter(w io.Writer) *LogReporter {
	if w == nil {
		w = os.Stderr
	}
	return &LogReporter{logger: log.New(w, "", log.LstdFlags)}
}

// OpenFileReporter appends to the file at path, creating parent directories.
func OpenFileReporter(path string) (*LogReporter, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open error log file: %w", err)
	}
	return NewLogReporter(io.MultiWriter(f, os.Stderr)), f, nil
}

// Report implements Reporter.
func (r *LogReporter) Report(err error, op string, fields ...any) {
	if r == nil || err == nil {
		return
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}
	r.logger.Printf("ERROR in %s:%d - %s: %v%s", filepath.Base(file), line, op, err, formatFields(fields))
}

func formatFields(fields []any) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(" [")
	for i := 0; i < len(fields); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i+1 < len(fields) {
			fmt.Fprintf(&b, "%v=%v", fields[i], fields[i+1])
		} else {
			fmt.Fprintf(&b, "%v", fields[i])
		}
	}
	b.WriteByte(']')
	return b.String()
}

// Entry is one recorded report.
type Entry struct {
	Err    error
	Op     string
	Fields []any
}

// Recorder keeps reports in memory. Tests use it to assert that background
// failures were surfaced.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Report implements Reporter.
func (r *Recorder) Report(err error, op string, fields ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Err: err, Op: op, Fields: fields})
}

// Entries returns a copy of everything reported so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Discard drops every report.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(error, string, ...any) {}
