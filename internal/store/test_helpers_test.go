package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/harness"
	"github.com/roach88/fixharness/internal/ir"
	"github.com/roach88/fixharness/internal/oracle"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTestRun inserts a run with a fixed start time.
func beginTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := NewRun(id, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return run
}

// createTestResult builds a failing mixed-mode result with one record of
// every kind.
func createTestResult(path string) *harness.Result {
	const hash = "5f0c"
	return &harness.Result{
		Fixture: "sample",
		Path:    path,
		Hash:    hash,
		Mode:    fixture.ModeMixed,
		Pass:    false,
		Assertions: []harness.AssertionRecord{
			{
				ID:     ir.MustAssertionID(hash, 0, "int", "int"),
				Seq:    1,
				Site:   fixture.AssertionSite{Index: 0, Position: fixture.Position{Line: 3}, Expr: "1", Expected: "int"},
				Actual: "int",
				Pass:   true,
			},
			{
				ID:     ir.MustAssertionID(hash, 1, "string", "int"),
				Seq:    2,
				Site:   fixture.AssertionSite{Index: 1, Position: fixture.Position{Line: 4}, Expr: "x", Expected: "string"},
				Actual: "int",
				Pass:   false,
			},
		},
		Outputs: []harness.OutputRecord{
			{ID: ir.MustOutputID(hash, 1, "start"), Seq: 1, Line: 5, Text: "start"},
			{ID: ir.MustOutputID(hash, 2, "3"), Seq: 3, Line: 6, Text: "3"},
		},
		Diagnostics: []oracle.Diagnostic{
			{Line: 2, Code: "redeclaration", Severity: oracle.SeverityInfo, Message: "foo", Source: "harness"},
		},
		Failures: []harness.Failure{
			{Code: harness.CodeTypeMismatch, File: path, Line: 4, Expr: "x", Expected: "string", Actual: "int"},
		},
		Digest: "d1",
	}
}
