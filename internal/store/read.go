package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/harness"
	"github.com/roach88/fixharness/internal/oracle"
)

// ReadRuns returns up to limit runs, newest first. Run IDs are UUIDv7, so
// ID order is creation order. limit <= 0 returns all runs.
func (s *Store) ReadRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, harness_version, record_version, finished, passed, failed, fatal
		FROM runs
		ORDER BY id COLLATE BINARY DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, harness_version, record_version, finished, passed, failed, fatal
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// LatestRun returns the most recent run.
// Returns sql.ErrNoRows if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.ReadRuns(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, sql.ErrNoRows
	}
	return runs[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		started string
	)
	err := row.Scan(&run.ID, &started, &run.HarnessVersion, &run.RecordVersion,
		&run.Finished, &run.Passed, &run.Failed, &run.Fatal)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	return run, nil
}

// ReadDigests returns fixture path -> result digest for a run.
func (s *Store) ReadDigests(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, digest FROM fixture_results
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer rows.Close()

	digests := make(map[string]string)
	for rows.Next() {
		var path, digest string
		if err := rows.Scan(&path, &digest); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		digests[path] = digest
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digests: %w", err)
	}
	return digests, nil
}

// FindResult resolves key to a fixture path within a run. key is either the
// stored path or a fixture name; a name shared by several fixtures is an
// error. Returns sql.ErrNoRows if nothing matches.
func (s *Store) FindResult(ctx context.Context, runID, key string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM fixture_results
		WHERE run_id = ? AND (path = ? OR fixture = ?)
		ORDER BY (path = ?) DESC, path COLLATE BINARY ASC
	`, runID, key, key, key)
	if err != nil {
		return "", fmt.Errorf("find result: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return "", fmt.Errorf("find result: scan: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("find result: %w", err)
	}

	switch {
	case len(paths) == 0:
		return "", sql.ErrNoRows
	case paths[0] == key || len(paths) == 1:
		return paths[0], nil
	default:
		return "", fmt.Errorf("fixture %q is ambiguous: %s", key, strings.Join(paths, ", "))
	}
}

// ReadResult rebuilds a stored fixture result with all its records.
// Returns sql.ErrNoRows if the run has no result for path.
func (s *Store) ReadResult(ctx context.Context, runID, path string) (*harness.Result, error) {
	r := &harness.Result{Path: path}
	var mode string
	err := s.db.QueryRowContext(ctx, `
		SELECT fixture, hash, mode, pass, digest, golden_path
		FROM fixture_results
		WHERE run_id = ? AND path = ?
	`, runID, path).Scan(&r.Fixture, &r.Hash, &mode, &r.Pass, &r.Digest, &r.GoldenPath)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("read result: %w", err)
	}
	r.Mode = fixture.Mode(mode)

	if r.Assertions, err = s.readAssertions(ctx, runID, path); err != nil {
		return nil, err
	}
	if r.Outputs, err = s.readOutputs(ctx, runID, path); err != nil {
		return nil, err
	}
	if r.Diagnostics, err = s.readDiagnostics(ctx, runID, path); err != nil {
		return nil, err
	}
	if r.Failures, err = s.readFailures(ctx, runID, path); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) readAssertions(ctx context.Context, runID, path string) ([]harness.AssertionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, idx, line, expr, expected, actual, pass
		FROM assertion_records
		WHERE run_id = ? AND path = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID, path)
	if err != nil {
		return nil, fmt.Errorf("query assertions: %w", err)
	}
	defer rows.Close()

	records := []harness.AssertionRecord{}
	for rows.Next() {
		var a harness.AssertionRecord
		if err := rows.Scan(&a.ID, &a.Seq, &a.Site.Index, &a.Site.Line, &a.Site.Expr, &a.Site.Expected, &a.Actual, &a.Pass); err != nil {
			return nil, fmt.Errorf("scan assertion: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assertions: %w", err)
	}
	return records, nil
}

func (s *Store) readOutputs(ctx context.Context, runID, path string) ([]harness.OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, line, text
		FROM output_records
		WHERE run_id = ? AND path = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID, path)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer rows.Close()

	records := []harness.OutputRecord{}
	for rows.Next() {
		var o harness.OutputRecord
		if err := rows.Scan(&o.ID, &o.Seq, &o.Line, &o.Text); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		records = append(records, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outputs: %w", err)
	}
	return records, nil
}

func (s *Store) readDiagnostics(ctx context.Context, runID, path string) ([]oracle.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line, col, code, severity, message, source
		FROM diagnostics
		WHERE run_id = ? AND path = ?
		ORDER BY seq ASC
	`, runID, path)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []oracle.Diagnostic{}
	for rows.Next() {
		var (
			d   oracle.Diagnostic
			sev string
		)
		if err := rows.Scan(&d.Line, &d.Column, &d.Code, &sev, &d.Message, &d.Source); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Severity = oracle.Severity(sev)
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}

func (s *Store) readFailures(ctx context.Context, runID, path string) ([]harness.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, line, expr, expected, actual, message
		FROM failures
		WHERE run_id = ? AND path = ?
		ORDER BY seq ASC
	`, runID, path)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var failures []harness.Failure
	for rows.Next() {
		f := harness.Failure{File: path}
		var code string
		if err := rows.Scan(&code, &f.Line, &f.Expr, &f.Expected, &f.Actual, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.Code = harness.Code(code)
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return failures, nil
}
