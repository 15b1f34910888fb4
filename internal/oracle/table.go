package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fixharness/internal/fixture"
)

// TableEntry holds the recorded checker answers for one fixture.
//
// Types keys are either a site index ("0") or "line:expr" ("20:x"); the
// second form survives edits that add assertions above a site.
type TableEntry struct {
	Types       map[string]string `yaml:"types"`
	Diagnostics []Diagnostic      `yaml:"diagnostics"`
}

// Table is an oracle backed by recorded checker output, keyed by fixture
// name.
type Table struct {
	Fixtures map[string]TableEntry `yaml:"fixtures"`
}

// LoadTable reads a YAML table. Unknown fields are rejected.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read type table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse type table: %w", err)
	}
	if t.Fixtures == nil {
		t.Fixtures = make(map[string]TableEntry)
	}
	return &t, nil
}

func (t *Table) Check(_ context.Context, fx *fixture.Fixture) (*Report, error) {
	r := NewReport()
	entry, ok := t.Fixtures[fx.Name]
	if !ok {
		return r, nil
	}
	for _, site := range fx.Assertions {
		if typ, ok := entry.Types[strconv.Itoa(site.Index)]; ok {
			r.Types[site.Index] = typ
			continue
		}
		if typ, ok := entry.Types[fmt.Sprintf("%d:%s", site.Line, site.Expr)]; ok {
			r.Types[site.Index] = typ
		}
	}
	for _, d := range entry.Diagnostics {
		if d.Source == "" {
			d.Source = "table"
		}
		r.Diagnostics = append(r.Diagnostics, d)
	}
	return r, nil
}

// Record stores a report's answers for fx, keyed by site index.
func (t *Table) Record(fx *fixture.Fixture, r *Report) {
	entry := TableEntry{Types: make(map[string]string, len(r.Types))}
	for idx, typ := range r.Types {
		entry.Types[strconv.Itoa(idx)] = typ
	}
	entry.Diagnostics = append(entry.Diagnostics, r.Diagnostics...)
	if t.Fixtures == nil {
		t.Fixtures = make(map[string]TableEntry)
	}
	t.Fixtures[fx.Name] = entry
}

// Marshal encodes the table as YAML.
func (t *Table) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("failed to encode type table: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
