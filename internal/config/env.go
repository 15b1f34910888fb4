package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "FIXHARNESS_"

// ReadEnv merges FIXHARNESS_* variables from the given .env files with the
// process environment. Missing files are skipped; the process environment
// wins over files, later files over earlier ones. The process environment
// is never modified.
func ReadEnv(files ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		for k, v := range values {
			if strings.HasPrefix(k, EnvPrefix) {
				env[k] = v
			}
		}
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv applies FIXHARNESS_* overrides. Unknown FIXHARNESS_ keys are
// rejected so typos surface.
func (c *Config) ApplyEnv(env map[string]string) error {
	for key, raw := range env {
		name, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok {
			continue
		}
		if err := c.setEnv(name, raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) setEnv(name, raw string) error {
	var err error
	switch name {
	case "ORACLE":
		c.Oracle.Kind = raw
	case "ORACLE_TABLE":
		c.Oracle.Table = raw
	case "ORACLE_COMMAND":
		c.Oracle.Command = strings.Fields(raw)
	case "EVALUATOR":
		c.Evaluator.Kind = raw
	case "EVALUATOR_COMMAND":
		c.Evaluator.Command = strings.Fields(raw)
	case "TIMEOUT":
		c.Evaluator.Timeout, err = time.ParseDuration(raw)
	case "GOLDEN_DIR":
		c.GoldenDir = raw
	case "PARALLEL":
		c.Parallel, err = strconv.Atoi(raw)
	case "MAX_JOBS":
		c.MaxJobs, err = strconv.Atoi(raw)
	case "TOLERATE_SYNTAX_ERRORS":
		c.TolerateSyntaxErrors, err = strconv.ParseBool(raw)
	case "REQUIRE_DECLARED_MODE":
		c.RequireDeclaredMode, err = strconv.ParseBool(raw)
	case "DB":
		c.DB = raw
	case "EXTENSIONS":
		c.Extensions = strings.Split(raw, ",")
	case "MONITOR_ADDR":
		c.Monitor.Addr = raw
	default:
		return errors.New("unknown setting")
	}
	return err
}
