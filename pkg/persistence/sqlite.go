// Package persistence implements the four logical tables this service
// needs — rules and timing_slots in SQLite, feedback_log and
// user_contexts as append-only bbolt buckets — behind a
// sql.Open("sqlite3", path) + CREATE TABLE IF NOT EXISTS + parameterized
// Exec/Query access pattern.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
)

// Store is the SQLite-backed persistence for rules and timing_slots.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open creates (or attaches to) the SQLite database at path and ensures
// its schema exists.
func Open(path string, logger *logx.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		trigger_condition TEXT NOT NULL,
		weight REAL NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		source TEXT NOT NULL DEFAULT 'user',
		task_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timing_slots (
		task_type TEXT NOT NULL,
		context_key TEXT NOT NULL,
		lead_time_minutes INTEGER NOT NULL,
		alpha REAL NOT NULL,
		beta REAL NOT NULL,
		total_triggers INTEGER NOT NULL,
		PRIMARY KEY (task_type, context_key, lead_time_minutes)
	);

	CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(is_active);
	CREATE INDEX IF NOT EXISTS idx_rules_task_type ON rules(task_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveRule upserts a full rule row (used on create/replace).
func (s *Store) SaveRule(r pkg.Rule, triggerJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO rules (id, name, description, trigger_condition, weight, is_active, source, task_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, trigger_condition=excluded.trigger_condition,
			weight=excluded.weight, is_active=excluded.is_active, source=excluded.source,
			task_type=excluded.task_type, updated_at=excluded.updated_at
	`, r.ID, r.Name, r.Description, triggerJSON, r.Weight, r.IsActive, string(r.Source), r.TaskType, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	return nil
}

// SaveRuleWeight implements feedback.Persister: a narrow row update for
// the weight column alone, on the hot feedback path.
func (s *Store) SaveRuleWeight(ruleID int64, weight float64) error {
	res, err := s.db.Exec(`UPDATE rules SET weight = ?, updated_at = ? WHERE id = ?`, weight, time.Now(), ruleID)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: rule %d", pkg.ErrRuleNotFound, ruleID)
	}
	return nil
}

// DeactivateRule sets is_active=false for the given rule.
func (s *Store) DeactivateRule(ruleID int64) error {
	_, err := s.db.Exec(`UPDATE rules SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), ruleID)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	return nil
}

// SaveTimingSlot upserts the full (alpha, beta, total_triggers) row for
// one (task_type, context_key, lead_time_minutes) triple.
func (s *Store) SaveTimingSlot(slot pkg.TimingSlot) error {
	_, err := s.db.Exec(`
		INSERT INTO timing_slots (task_type, context_key, lead_time_minutes, alpha, beta, total_triggers)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_type, context_key, lead_time_minutes) DO UPDATE SET
			alpha=excluded.alpha, beta=excluded.beta, total_triggers=excluded.total_triggers
	`, slot.TaskType, slot.ContextKey, slot.LeadTimeMinutes, slot.Alpha, slot.Beta, slot.TotalTriggers)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	return nil
}

// LoadTimingSlots returns every persisted TimingSlot, for startup warm-up.
func (s *Store) LoadTimingSlots() ([]pkg.TimingSlot, error) {
	rows, err := s.db.Query(`SELECT task_type, context_key, lead_time_minutes, alpha, beta, total_triggers FROM timing_slots`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	var out []pkg.TimingSlot
	for rows.Next() {
		var t pkg.TimingSlot
		if err := rows.Scan(&t.TaskType, &t.ContextKey, &t.LeadTimeMinutes, &t.Alpha, &t.Beta, &t.TotalTriggers); err != nil {
			return nil, fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadActiveRules returns every row from the rules table with
// is_active=1, along with its raw trigger_condition JSON for the caller
// to unmarshal (keeps this package free of a JSON-schema dependency on
// map[string]any decoding rules).
func (s *Store) LoadActiveRules() ([]RuleRow, error) {
	return s.queryRules(`SELECT id, name, description, trigger_condition, weight, is_active, source, task_type, created_at, updated_at FROM rules WHERE is_active = 1 ORDER BY id`)
}

// LoadAllRules returns every row regardless of is_active.
func (s *Store) LoadAllRules() ([]RuleRow, error) {
	return s.queryRules(`SELECT id, name, description, trigger_condition, weight, is_active, source, task_type, created_at, updated_at FROM rules ORDER BY id`)
}

func (s *Store) queryRules(query string) ([]RuleRow, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	defer rows.Close()

	var out []RuleRow
	for rows.Next() {
		var r RuleRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.TriggerConditionJSON, &r.Weight, &r.IsActive, &r.Source, &r.TaskType, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RuleRow is the raw row shape persisted for a Rule; TriggerConditionJSON
// is unmarshaled by the caller into map[string]any to avoid coupling
// this package to the rules package's types.
type RuleRow struct {
	ID                   int64
	Name                 string
	Description          string
	TriggerConditionJSON string
	Weight               float64
	IsActive             bool
	Source               string
	TaskType             string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
