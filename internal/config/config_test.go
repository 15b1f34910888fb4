package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "literal", cfg.Oracle.Kind)
	assert.Equal(t, "goja", cfg.Evaluator.Kind)
	assert.Equal(t, DefaultTimeout, cfg.Evaluator.Timeout)
	assert.Equal(t, []string{".js", ".ts", ".tsx"}, cfg.Extensions)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
oracle:
  kind: table
  table: types.yaml
evaluator:
  timeout: 250ms
parallel: 4
max_jobs: 500
require_declared_mode: true
`))
	require.NoError(t, err)

	assert.Equal(t, "table", cfg.Oracle.Kind)
	assert.Equal(t, "types.yaml", cfg.Oracle.Table)
	assert.Equal(t, "goja", cfg.Evaluator.Kind, "unset fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Evaluator.Timeout)
	assert.Equal(t, 4, cfg.Parallel)
	assert.Equal(t, 500, cfg.MaxJobs)
	assert.True(t, cfg.RequireDeclaredMode)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("paralel: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paralel")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown oracle", "oracle:\n  kind: magic\n"},
		{"table without path", "oracle:\n  kind: table\n"},
		{"process oracle without command", "oracle:\n  kind: process\n"},
		{"process evaluator without command", "evaluator:\n  kind: process\n"},
		{"negative parallel", "parallel: -1\n"},
		{"negative timeout", "evaluator:\n  timeout: -1s\n"},
		{"bad extension", "extensions: [js]\n"},
		{"no extensions", "extensions: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
		})
	}
}

func TestValidate_ProcessWithCommand(t *testing.T) {
	_, err := Parse([]byte(`
oracle:
  kind: process
  command: [tsc-types, --json]
evaluator:
  kind: process
  command: [ark_js_vm]
`))
	assert.NoError(t, err)
}

func TestLoad_ResolvesPathsAgainstConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fixharness.yaml", `
oracle:
  kind: table
  table: types.yaml
db: runs.db
golden_dir: /abs/golden
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "types.yaml"), cfg.Oracle.Table)
	assert.Equal(t, filepath.Join(dir, "runs.db"), cfg.DB)
	assert.Equal(t, "/abs/golden", cfg.GoldenDir)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_DotEnvAndProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fixharness.yaml", "parallel: 1\n")
	writeFile(t, dir, ".env", "FIXHARNESS_PARALLEL=3\nFIXHARNESS_DB=from-dotenv.db\nOTHER=ignored\n")
	t.Setenv("FIXHARNESS_DB", "from-process.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Parallel, ".env overrides the file")
	assert.Equal(t, "from-process.db", cfg.DB, "process env overrides .env")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(map[string]string{
		"FIXHARNESS_ORACLE":                 "chain",
		"FIXHARNESS_ORACLE_COMMAND":         "checker --json",
		"FIXHARNESS_EVALUATOR":              "none",
		"FIXHARNESS_TIMEOUT":                "2s",
		"FIXHARNESS_MAX_JOBS":               "10",
		"FIXHARNESS_TOLERATE_SYNTAX_ERRORS": "true",
		"FIXHARNESS_EXTENSIONS":             ".js,.mjs",
		"FIXHARNESS_MONITOR_ADDR":           "127.0.0.1:0",
		"HOME":                              "/root",
	})
	require.NoError(t, err)

	assert.Equal(t, "chain", cfg.Oracle.Kind)
	assert.Equal(t, []string{"checker", "--json"}, cfg.Oracle.Command)
	assert.Equal(t, "none", cfg.Evaluator.Kind)
	assert.Equal(t, 2*time.Second, cfg.Evaluator.Timeout)
	assert.Equal(t, 10, cfg.MaxJobs)
	assert.True(t, cfg.TolerateSyntaxErrors)
	assert.Equal(t, []string{".js", ".mjs"}, cfg.Extensions)
	assert.Equal(t, "127.0.0.1:0", cfg.Monitor.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := map[string]string{
		"FIXHARNESS_PARALLEL":    "many",
		"FIXHARNESS_TIMEOUT":     "soon",
		"FIXHARNESS_PARALLELISM": "2",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			err := Default().ApplyEnv(map[string]string{key: value})
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestReadEnv_MissingFileSkipped(t *testing.T) {
	env, err := ReadEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	for k := range env {
		assert.Contains(t, k, EnvPrefix)
	}
}
