// Copyright 2025 The Refinery Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runstore persists completed pipeline runs to SQLite so past
// results survive the one-shot CLI process.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/pipeline"
)

// Store is a SQLite-backed archive of run reports.
type Store struct {
	db *sql.DB
}

// Summary is one row of the run listing.
type Summary struct {
	RunID          string
	Problem        string
	Outcome        pipeline.Outcome
	IterationCount int
	StartedAt      time.Time
	Duration       time.Duration
}

// Open opens or creates the run database at path. The special value
// ":memory:" creates an in-memory database for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode lets history reads run while a report is being saved.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			problem TEXT NOT NULL,
			outcome TEXT NOT NULL,
			iteration_count INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			report TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save archives a completed run report.
func (s *Store) Save(ctx context.Context, report *pipeline.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, problem, outcome, iteration_count, started_at, duration_ms, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.ProblemStatement,
		string(report.Outcome),
		report.IterationCount,
		report.StartedAt.UnixMilli(),
		report.Duration.Milliseconds(),
		string(data),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.RunID, err)
	}
	return nil
}

// Get retrieves a full report by run ID.
func (s *Store) Get(ctx context.Context, runID string) (*pipeline.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &refineryerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var report pipeline.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &report, nil
}

// List returns run summaries newest-first, at most limit rows. A limit
// of zero or less means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT run_id, problem, outcome, iteration_count, started_at, duration_ms
		FROM runs ORDER BY started_at DESC, created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary    Summary
			outcome    string
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(&summary.RunID, &summary.Problem, &outcome,
			&summary.IterationCount, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summary.Outcome = pipeline.Outcome(outcome)
		summary.StartedAt = time.UnixMilli(startedAt)
		summary.Duration = time.Duration(durationMs) * time.Millisecond
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return summaries, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
