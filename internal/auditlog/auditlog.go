// Package auditlog records executed reconciliation runs in a CSV log.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

// Run statuses.
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
)

// Entry is one row in the run log.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"runId"`
	Source       string    `json:"source"`
	AccountID    string    `json:"accountId,omitempty"`
	Input        string    `json:"input,omitempty"`
	Status       string    `json:"status"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Unchanged    int       `json:"unchanged"`
	Skipped      int       `json:"skipped"`
	RulesApplied int       `json:"rulesApplied"`
	Error        string    `json:"error,omitempty"`
}

// FromResult fills the counts of e from an execute result.
func (e Entry) FromResult(res *reconcile.ExecuteResult) Entry {
	if res == nil {
		return e
	}
	e.Created = res.Created
	e.Updated = res.Updated
	e.Unchanged = res.Unchanged
	e.Skipped = res.Skipped
	e.RulesApplied = res.RulesApplied
	return e
}

// Header is the CSV header for reconcile-log.csv.
const Header = "timestamp,run_id,source,account_id,input,status,created,updated,unchanged,skipped,rules_applied,error"

const (
	numFields       = 12
	logDir          = "logs"
	logFile         = "logs/reconcile-log.csv"
	colTimestamp    = 0
	colRunID        = 1
	colSource       = 2
	colAccountID    = 3
	colInput        = 4
	colStatus       = 5
	colCreated      = 6
	colUpdated      = 7
	colUnchanged    = 8
	colSkipped      = 9
	colRulesApplied = 10
	colError        = 11
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colRunID] = e.RunID
	row[colSource] = e.Source
	row[colAccountID] = e.AccountID
	row[colInput] = e.Input
	row[colStatus] = e.Status
	row[colCreated] = strconv.Itoa(e.Created)
	row[colUpdated] = strconv.Itoa(e.Updated)
	row[colUnchanged] = strconv.Itoa(e.Unchanged)
	row[colSkipped] = strconv.Itoa(e.Skipped)
	row[colRulesApplied] = strconv.Itoa(e.RulesApplied)
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	e := Entry{
		Timestamp: ts,
		RunID:     record[colRunID],
		Source:    record[colSource],
		AccountID: record[colAccountID],
		Input:     record[colInput],
		Status:    record[colStatus],
		Error:     record[colError],
	}
	counts := []struct {
		col int
		dst *int
	}{
		{colCreated, &e.Created},
		{colUpdated, &e.Updated},
		{colUnchanged, &e.Unchanged},
		{colSkipped, &e.Skipped},
		{colRulesApplied, &e.RulesApplied},
	}
	for _, c := range counts {
		n, err := strconv.Atoi(record[c.col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[c.col], err)
		}
		*c.dst = n
	}
	return e, nil
}

// Log appends to and reads <root>/logs/reconcile-log.csv. It is safe for
// concurrent use within one process.
type Log struct {
	root string
	mu   sync.Mutex
}

// New returns the run log under root.
func New(root string) *Log {
	return &Log{root: root}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return filepath.Join(l.root, logFile)
}

// Append writes entries, creating the file and header if needed.
func (l *Log) Append(entries ...Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := l.Path()
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries, oldest first. A missing file yields none.
func (l *Log) Read() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	all, err := l.Read()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, min(n, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
