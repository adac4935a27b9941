// Package audit keeps an append-only record of every fetch attempt.
package audit

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/pricescout/models"
)

// Recorder receives one call per fetch attempt. Implementations must be
// safe for concurrent use and must never fail the caller.
type Recorder interface {
	Record(a models.FetchAttempt)
}

// Nop discards every attempt.
type Nop struct{}

func (Nop) Record(models.FetchAttempt) {}

var csvHeader = []string{
	"timestamp",
	"url",
	"proxy",
	"user_agent",
	"status_code",
	"retry_count",
	"headers",
	"response_length",
}

// CSVLog appends attempts to a CSV file. Rows are written under a mutex so
// concurrent engines never interleave partial rows. Write failures are
// logged and swallowed.
type CSVLog struct {
	mu   sync.Mutex
	path string
}

// NewCSVLog opens (or creates) the log at path, writing the header row
// when the file does not exist yet.
func NewCSVLog(path string) (*CSVLog, error) {
	l := &CSVLog{path: path}
	if _, err := os.Stat(path); err == nil {
		return l, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	if err := l.appendRows([][]string{csvHeader}); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the file the log writes to.
func (l *CSVLog) Path() string { return l.path }

// Record appends one attempt.
func (l *CSVLog) Record(a models.FetchAttempt) {
	headers, err := json.Marshal(a.Headers)
	if err != nil {
		headers = []byte("{}")
	}
	proxy := a.Proxy
	if proxy == "" {
		proxy = "none"
	}
	ua := a.UserAgent
	if ua == "" {
		ua = "unknown"
	}
	row := []string{
		a.Timestamp.Format(time.RFC3339Nano),
		a.URL,
		proxy,
		ua,
		strconv.Itoa(a.StatusCode),
		strconv.Itoa(a.RetryIndex),
		string(headers),
		strconv.Itoa(a.ResponseLength),
	}
	if err := l.appendRows([][]string{row}); err != nil {
		slog.Warn("audit: record attempt failed", "path", l.path, "error", err)
	}
}

func (l *CSVLog) appendRows(rows [][]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("audit: write %s: %w", l.path, err)
	}
	return f.Close()
}

// Multi fans attempts out to several recorders.
type Multi []Recorder

func (m Multi) Record(a models.FetchAttempt) {
	for _, r := range m {
		r.Record(a)
	}
}

// LogRecorder mirrors attempts to slog at debug level.
type LogRecorder struct{}

func (LogRecorder) Record(a models.FetchAttempt) {
	slog.Debug("fetch attempt",
		"url", a.URL,
		"status", a.StatusCode,
		"retry", a.RetryIndex,
		"transport", a.Transport,
		"bytes", a.ResponseLength,
		"proxy", a.Proxy,
		"error", a.Err,
	)
}
