package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"report_agent/internal/common"
)

// Store handles SQLite persistence for completed pipeline runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) a SQLite database at the given path and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		user_request   TEXT NOT NULL,
		plan_json      TEXT DEFAULT '',
		final_response TEXT DEFAULT '',
		metric_count   INTEGER DEFAULT 0,
		fallback_plan  INTEGER DEFAULT 0,
		created_at     TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE TABLE IF NOT EXISTS run_queries (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		query_id    TEXT NOT NULL,
		purpose     TEXT DEFAULT '',
		success     INTEGER DEFAULT 0,
		row_count   INTEGER DEFAULT 0,
		error       TEXT DEFAULT '',
		created_at  TEXT NOT NULL DEFAULT (datetime('now'))
	);`
	_, err := s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a completed run and its per-query records.
func (s *Store) SaveRun(run *Run) error {
	planJSON, _ := json.Marshal(run.Plan)
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, user_request, plan_json, final_response, metric_count, fallback_plan, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.UserRequest, string(planJSON), run.FinalResponse, run.MetricCount, boolToInt(run.FallbackPlan), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	for _, q := range run.Queries {
		if _, err := s.db.Exec(
			"INSERT INTO run_queries (run_id, query_id, purpose, success, row_count, error) VALUES (?, ?, ?, ?, ?, ?)",
			run.ID, q.QueryID, q.Purpose, boolToInt(q.Success), q.RowCount, q.Error,
		); err != nil {
			return fmt.Errorf("save query record %s: %w", q.QueryID, err)
		}
	}
	return nil
}

// GetRun loads one run with its query records.
func (s *Store) GetRun(id string) (*Run, error) {
	run := &Run{ID: id}
	var planJSON, createdAt string
	var fallback int
	err := s.db.QueryRow(
		"SELECT user_request, plan_json, final_response, metric_count, fallback_plan, created_at FROM runs WHERE id = ?", id,
	).Scan(&run.UserRequest, &planJSON, &run.FinalResponse, &run.MetricCount, &fallback, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	run.FallbackPlan = fallback != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		run.CreatedAt = t
	}
	if planJSON != "" {
		var plan common.ExecutionPlan
		if err := json.Unmarshal([]byte(planJSON), &plan); err == nil {
			run.Plan = plan
		}
	}

	rows, err := s.db.Query(
		"SELECT query_id, purpose, success, row_count, error FROM run_queries WHERE run_id = ? ORDER BY id ASC", id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var q QueryRecord
		var success int
		if err := rows.Scan(&q.QueryID, &q.Purpose, &success, &q.RowCount, &q.Error); err != nil {
			return nil, err
		}
		q.Success = success != 0
		run.Queries = append(run.Queries, q)
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without query
// records or plans.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		"SELECT id, user_request, metric_count, fallback_plan, created_at FROM runs ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var fallback int
		var createdAt string
		if err := rows.Scan(&run.ID, &run.UserRequest, &run.MetricCount, &fallback, &createdAt); err != nil {
			return nil, err
		}
		run.FallbackPlan = fallback != 0
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			run.CreatedAt = t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunCount returns the number of persisted runs.
func (s *Store) RunCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
