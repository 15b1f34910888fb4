package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/ir"
)

// GoldenSuffix is the extension of expected-output files.
const GoldenSuffix = ".golden"

// GoldenName is the golden file base name for fx: its file name without
// extension. Metadata names are not unique across a corpus.
func GoldenName(fx *fixture.Fixture) string {
	base := filepath.Base(fx.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GoldenPath returns where fx's expected output lives: dir/<name>.golden,
// or golden/<name>.golden next to the fixture when dir is empty.
func GoldenPath(fx *fixture.Fixture, dir string) string {
	if dir == "" {
		dir = filepath.Join(filepath.Dir(fx.Path), "golden")
	}
	return filepath.Join(dir, GoldenName(fx)+GoldenSuffix)
}

// ReadGolden reads a golden file as one expected output per line.
// A missing file is not an error.
func ReadGolden(path string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read golden file: %w", err)
	}
	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return []string{}, true, nil
	}
	return strings.Split(text, "\n"), true, nil
}

// WriteGolden stores the captured output of result as its golden file.
func WriteGolden(path string, result *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden dir: %w", err)
	}
	var b strings.Builder
	for _, text := range result.OutputTexts() {
		b.WriteString(text)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// Snapshot is the canonical, order-preserving view of a result used for
// golden comparison in tests.
func Snapshot(result *Result) ([]byte, error) {
	assertions := make([]any, len(result.Assertions))
	for i, a := range result.Assertions {
		assertions[i] = map[string]any{
			"index":    a.Site.Index,
			"line":     a.Site.Line,
			"expr":     a.Site.Expr,
			"expected": a.Site.Expected,
			"actual":   a.Actual,
			"pass":     a.Pass,
		}
	}
	outputs := make([]any, len(result.Outputs))
	for i, o := range result.Outputs {
		outputs[i] = map[string]any{
			"seq":  o.Seq,
			"line": o.Line,
			"text": o.Text,
		}
	}
	failures := make([]any, len(result.Failures))
	for i := range result.Failures {
		failures[i] = result.Failures[i].Error()
	}
	return ir.MarshalCanonical(map[string]any{
		"fixture":    result.Fixture,
		"mode":       string(result.Mode),
		"pass":       result.Pass,
		"assertions": assertions,
		"outputs":    outputs,
		"failures":   failures,
	})
}

// AssertGolden compares result's snapshot against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}
	pretty, err := ir.Indent(snapshot)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, name, []byte(pretty+"\n"))
	return nil
}
