package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/fixharness/internal/harness"
	"github.com/roach88/fixharness/internal/ir"
)

// Run is one suite execution.
type Run struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	HarnessVersion string    `json:"harness_version"`
	RecordVersion  string    `json:"record_version"`
	Finished       bool      `json:"finished"`
	Passed         int       `json:"passed"`
	Failed         int       `json:"failed"`
	Fatal          int       `json:"fatal"`
}

// NewRun creates an unfinished run stamped with the current versions.
func NewRun(id string, startedAt time.Time) Run {
	return Run{
		ID:             id,
		StartedAt:      startedAt.UTC(),
		HarnessVersion: ir.HarnessVersion,
		RecordVersion:  ir.RecordVersion,
	}
}

// BeginRun inserts a run row. Uses ON CONFLICT(id) DO NOTHING for
// idempotency.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, harness_version, record_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.HarnessVersion,
		run.RecordVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the suite totals for a run.
func (s *Store) FinishRun(ctx context.Context, runID string, suite *harness.SuiteResult) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished = 1, passed = ?, failed = ?, fatal = ?
		WHERE id = ?
	`, suite.Passed, suite.Failed, suite.Fatal, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// WriteResult stores one fixture result and all its records in a single
// transaction. A result already stored for the same run and path is left
// untouched.
func (s *Store) WriteResult(ctx context.Context, runID string, r *harness.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write result: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO fixture_results
		(run_id, path, fixture, hash, mode, pass, digest, golden_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO NOTHING
	`,
		runID,
		r.Path,
		r.Fixture,
		r.Hash,
		string(r.Mode),
		r.Pass,
		r.Digest,
		r.GoldenPath,
	)
	if err != nil {
		return fmt.Errorf("write result: insert fixture: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write result: rows affected: %w", err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	for _, a := range r.Assertions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assertion_records
			(run_id, path, id, seq, idx, line, expr, expected, actual, pass)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, runID, r.Path, a.ID, a.Seq, a.Site.Index, a.Site.Line, a.Site.Expr, a.Site.Expected, a.Actual, a.Pass)
		if err != nil {
			return fmt.Errorf("write result: insert assertion %d: %w", a.Site.Index, err)
		}
	}

	for _, o := range r.Outputs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO output_records
			(run_id, path, id, seq, line, text)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, runID, r.Path, o.ID, o.Seq, o.Line, o.Text)
		if err != nil {
			return fmt.Errorf("write result: insert output %d: %w", o.Seq, err)
		}
	}

	for i, d := range r.Diagnostics {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics
			(run_id, path, seq, line, col, code, severity, message, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, runID, r.Path, i+1, d.Line, d.Column, d.Code, string(d.Severity), d.Message, d.Source)
		if err != nil {
			return fmt.Errorf("write result: insert diagnostic: %w", err)
		}
	}

	for i, f := range r.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO failures
			(run_id, path, seq, code, line, expr, expected, actual, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, runID, r.Path, i+1, string(f.Code), f.Line, f.Expr, f.Expected, f.Actual, f.Message)
		if err != nil {
			return fmt.Errorf("write result: insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write result: commit: %w", err)
	}
	return nil
}

// WriteSuite stores every result of a finished suite under runID and
// records its totals.
func (s *Store) WriteSuite(ctx context.Context, runID string, suite *harness.SuiteResult) error {
	for _, r := range suite.Results {
		if err := s.WriteResult(ctx, runID, r); err != nil {
			return fmt.Errorf("%s: %w", r.Path, err)
		}
	}
	return s.FinishRun(ctx, runID, suite)
}
