// Package config loads fixharness settings from a YAML file, .env files
// and FIXHARNESS_* environment variables, and validates the result against
// an embedded CUE schema.
//
// Precedence, lowest first: built-in defaults, the YAML file, .env next to
// the YAML file, the process environment.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// DefaultTimeout bounds the runtime phase of one fixture.
const DefaultTimeout = 10 * time.Second

// Config is the full harness configuration.
type Config struct {
	Oracle               OracleConfig    `yaml:"oracle"`
	Evaluator            EvaluatorConfig `yaml:"evaluator"`
	GoldenDir            string          `yaml:"golden_dir"`
	Parallel             int             `yaml:"parallel"`
	MaxJobs              int             `yaml:"max_jobs"`
	TolerateSyntaxErrors bool            `yaml:"tolerate_syntax_errors"`
	RequireDeclaredMode  bool            `yaml:"require_declared_mode"`
	DB                   string          `yaml:"db"`
	Extensions           []string        `yaml:"extensions"`
	Monitor              MonitorConfig   `yaml:"monitor"`
}

// OracleConfig selects the static type oracle.
//
//	literal  literal-only answers
//	table    recorded answers from Table, then literals
//	process  an external checker Command, then literals
//	chain    table, process and literals, in that order, each if configured
type OracleConfig struct {
	Kind    string   `yaml:"kind"`
	Table   string   `yaml:"table"`
	Command []string `yaml:"command"`
}

// EvaluatorConfig selects the runtime evaluator.
type EvaluatorConfig struct {
	Kind    string        `yaml:"kind"` // goja, process or none
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Strict  bool          `yaml:"strict"`
}

// MonitorConfig configures the websocket event monitor. An empty Addr
// disables it.
type MonitorConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Oracle:     OracleConfig{Kind: "literal"},
		Evaluator:  EvaluatorConfig{Kind: "goja", Timeout: DefaultTimeout},
		Extensions: []string{".js", ".ts", ".tsx"},
	}
}

// Load reads the configuration at path, applies .env and environment
// overrides and validates the result. An empty path starts from Default
// and looks for .env in the working directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	dir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		dir = filepath.Dir(path)
		cfg.resolve(dir)
	}

	env, err := ReadEnv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates it. No
// environment overrides are applied.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// resolve makes file paths relative to the config file's directory.
func (c *Config) resolve(dir string) {
	for _, p := range []*string{&c.Oracle.Table, &c.GoldenDir, &c.DB} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c.document())
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// document is the schema view of c: durations as strings, nil slices as
// empty lists.
func (c *Config) document() map[string]any {
	orNone := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	return map[string]any{
		"oracle": map[string]any{
			"kind":    c.Oracle.Kind,
			"table":   c.Oracle.Table,
			"command": orNone(c.Oracle.Command),
		},
		"evaluator": map[string]any{
			"kind":    c.Evaluator.Kind,
			"command": orNone(c.Evaluator.Command),
			"timeout": c.Evaluator.Timeout.String(),
			"strict":  c.Evaluator.Strict,
		},
		"golden_dir":             c.GoldenDir,
		"parallel":               c.Parallel,
		"max_jobs":               c.MaxJobs,
		"tolerate_syntax_errors": c.TolerateSyntaxErrors,
		"require_declared_mode":  c.RequireDeclaredMode,
		"db":                     c.DB,
		"extensions":             orNone(c.Extensions),
		"monitor":                map[string]any{"addr": c.Monitor.Addr},
	}
}

// ValidationError reports a configuration rejected by the schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
