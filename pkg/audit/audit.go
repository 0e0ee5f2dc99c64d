// Package audit provides a diagnostics trail of why rules were
// surfaced or suppressed during inference: a bounded in-memory ring
// buffer of Entry records, backed by an append-only CSV file, guarded
// by a single sync.RWMutex.
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mirakessler/nudge/pkg/logx"
)

// Entry is one rule-evaluation outcome recorded during an infer() call.
type Entry struct {
	Timestamp       time.Time `json:"timestamp"`
	RuleID          int64     `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	ContextKey      string    `json:"context_key"`
	BaseScore       float64   `json:"base_score"`
	Weight          float64   `json:"weight"`
	SuggestionScore float64   `json:"suggestion_score"`
	Surfaced        bool      `json:"surfaced"`
	Reasoning       string    `json:"reasoning"`
}

// Log is the append-only, size-bounded audit trail for inference
// outcomes. Entries beyond maxRecords age out of the in-memory ring but
// the CSV file on disk keeps the full history.
type Log struct {
	mu         sync.RWMutex
	logger     *logx.Logger
	entries    []Entry
	maxRecords int
	csvPath    string
}

// New creates a Log writing its CSV trail under logDir (created if
// absent). maxRecords <= 0 defaults to 1000.
func New(logger *logx.Logger, maxRecords int, logDir string) *Log {
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	if logDir == "" {
		logDir = "/var/log/nudge"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil && logger != nil {
		logger.Error("failed to create audit log directory", "error", err.Error(), "path", logDir)
	}
	return &Log{
		logger:     logger,
		entries:    make([]Entry, 0, maxRecords),
		maxRecords: maxRecords,
		csvPath:    filepath.Join(logDir, "inference_audit.csv"),
	}
}

// Record appends one entry, logging non-surfaced rules at debug level,
// and trims the in-memory ring to maxRecords.
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxRecords {
		l.entries = l.entries[len(l.entries)-l.maxRecords:]
	}

	if err := l.writeCSV(e); err != nil && l.logger != nil {
		l.logger.Error("failed to write audit entry to csv", "error", err.Error(), "rule_id", e.RuleID)
	}

	if l.logger == nil {
		return
	}
	if e.Surfaced {
		l.logger.Debug("rule surfaced", "rule_id", e.RuleID, "rule_name", e.RuleName, "suggestion_score", e.SuggestionScore)
	} else {
		l.logger.Debug("rule suppressed", "rule_id", e.RuleID, "rule_name", e.RuleName, "suggestion_score", e.SuggestionScore, "reasoning", e.Reasoning)
	}
}

// Recent returns up to limit entries since the given time, most recent last.
func (l *Log) Recent(since time.Time, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []Entry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].Timestamp.After(since) {
			out = append([]Entry{l.entries[i]}, out...)
		}
	}
	return out
}

func (l *Log) writeCSV(e Entry) error {
	if _, err := os.Stat(l.csvPath); os.IsNotExist(err) {
		if err := l.writeCSVHeader(); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	row := []string{
		e.Timestamp.Format(time.RFC3339),
		fmt.Sprintf("%d", e.RuleID),
		e.RuleName,
		e.ContextKey,
		fmt.Sprintf("%.3f", e.BaseScore),
		fmt.Sprintf("%.3f", e.Weight),
		fmt.Sprintf("%.3f", e.SuggestionScore),
		fmt.Sprintf("%v", e.Surfaced),
		e.Reasoning,
	}
	return w.Write(row)
}

func (l *Log) writeCSVHeader() error {
	f, err := os.Create(l.csvPath)
	if err != nil {
		return fmt.Errorf("failed to create audit csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	return w.Write([]string{"timestamp", "rule_id", "rule_name", "context_key", "base_score", "weight", "suggestion_score", "surfaced", "reasoning"})
}

// Count returns the current number of in-memory entries.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
