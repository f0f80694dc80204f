// Package audit keeps the append-only record of diagnosis attempts: which
// run, which scenario, which strategy, and how it ended. The log exists so
// a misleading diagnosis can be traced after the fact; it never stores
// runs themselves.
package audit

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Strategy labels for audit records.
const (
	StrategyRules = "rules"
	StrategyModel = "model"
)

// Record is one diagnosis attempt. Condition is empty on success and
// carries the caller-visible condition code otherwise.
type Record struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ScenarioKey  string    `json:"scenario_key"`
	RunLabel     string    `json:"run_label"`
	CompareLabel string    `json:"compare_label,omitempty"`
	Strategy     string    `json:"strategy"`
	Verdict      string    `json:"verdict,omitempty"`
	Condition    string    `json:"condition,omitempty"`
	Details      string    `json:"details,omitempty"`
}

// Validate enforces the minimal audit contract.
func (r Record) Validate() error {
	if r.ScenarioKey == "" {
		return fmt.Errorf("audit record scenario_key is required")
	}
	if r.RunLabel == "" {
		return fmt.Errorf("audit record run_label is required")
	}
	if r.Strategy == "" {
		return fmt.Errorf("audit record strategy is required")
	}
	return nil
}

// Store is the sqlite-backed audit log. Writes are serialized internally;
// reads go straight to the database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS diagnosis_audit (
	id            TEXT PRIMARY KEY,
	created_at    INTEGER NOT NULL,
	scenario_key  TEXT NOT NULL,
	run_label     TEXT NOT NULL,
	compare_label TEXT NOT NULL DEFAULT '',
	strategy      TEXT NOT NULL,
	verdict       TEXT NOT NULL DEFAULT '',
	condition     TEXT NOT NULL DEFAULT '',
	details       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS diagnosis_audit_created_at ON diagnosis_audit (created_at);
`

// Open opens (and if needed initializes) the audit database at path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one validated record, assigning id and timestamp when the
// caller left them zero, and returns the stored record.
func (s *Store) Append(record Record) (Record, error) {
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO diagnosis_audit
			(id, created_at, scenario_key, run_label, compare_label, strategy, verdict, condition, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.CreatedAt.UnixMilli(), record.ScenarioKey, record.RunLabel,
		record.CompareLabel, record.Strategy, record.Verdict, record.Condition, record.Details,
	)
	if err != nil {
		return Record{}, fmt.Errorf("append audit record: %w", err)
	}
	return record, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, created_at, scenario_key, run_label, compare_label, strategy, verdict, condition, details
		 FROM diagnosis_audit ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var createdAt int64
		if err := rows.Scan(
			&record.ID, &createdAt, &record.ScenarioKey, &record.RunLabel,
			&record.CompareLabel, &record.Strategy, &record.Verdict, &record.Condition, &record.Details,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

// SweepOlderThan deletes records older than maxAge and reports how many
// were removed.
func (s *Store) SweepOlderThan(maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("sweep max age must be positive")
	}
	cutoff := time.Now().UTC().Add(-maxAge).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.Exec(`DELETE FROM diagnosis_audit WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep audit records: %w", err)
	}
	return result.RowsAffected()
}
