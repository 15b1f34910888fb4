package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/fixharness/internal/config"
	"github.com/roach88/fixharness/internal/evaluator"
	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/harness"
	"github.com/roach88/fixharness/internal/oracle"
	"github.com/roach88/fixharness/internal/store"
)

// loadConfig loads the --config file with environment overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger returns a debug text logger on w with -v, a discard logger
// otherwise.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	if !opts.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (o *RootOptions) runID() (string, error) {
	if o.NewRunID != nil {
		return o.NewRunID()
	}
	return store.NewRunID()
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// buildOracle assembles the configured type oracle. Every kind falls back
// to literal answers for sites the primary source leaves out.
func buildOracle(cfg config.OracleConfig, log *slog.Logger) (oracle.Oracle, error) {
	var chain oracle.Chain

	table := func() error {
		t, err := oracle.LoadTable(cfg.Table)
		if err != nil {
			return err
		}
		chain = append(chain, t)
		return nil
	}
	process := func() {
		chain = append(chain, &oracle.Process{
			Command: cfg.Command[0],
			Args:    cfg.Command[1:],
			Logger:  log,
		})
	}

	switch cfg.Kind {
	case "literal":
	case "table":
		if err := table(); err != nil {
			return nil, err
		}
	case "process":
		process()
	case "chain":
		if cfg.Table != "" {
			if err := table(); err != nil {
				return nil, err
			}
		}
		if len(cfg.Command) > 0 {
			process()
		}
	default:
		return nil, fmt.Errorf("unknown oracle kind %q", cfg.Kind)
	}
	return append(chain, oracle.Literal{}), nil
}

// buildEvaluator returns the configured evaluator, or nil for "none".
func buildEvaluator(cfg config.EvaluatorConfig) (evaluator.Evaluator, error) {
	switch cfg.Kind {
	case "goja":
		return &evaluator.Goja{Strict: cfg.Strict}, nil
	case "process":
		return &evaluator.Process{Command: cfg.Command[0], Args: cfg.Command[1:]}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown evaluator kind %q", cfg.Kind)
	}
}

// harnessOptions turns the configuration into harness.Options.
func harnessOptions(opts *RootOptions, cfg *config.Config, log *slog.Logger) (harness.Options, error) {
	orc, err := buildOracle(cfg.Oracle, log)
	if err != nil {
		return harness.Options{}, WrapExitError(ExitCommandError, "failed to build type oracle", err)
	}
	ev := opts.Evaluator
	if ev == nil {
		ev, err = buildEvaluator(cfg.Evaluator)
		if err != nil {
			return harness.Options{}, WrapExitError(ExitCommandError, "failed to build evaluator", err)
		}
	}
	return harness.Options{
		Oracle:               orc,
		Evaluator:            ev,
		GoldenDir:            cfg.GoldenDir,
		TolerateSyntaxErrors: cfg.TolerateSyntaxErrors,
		Timeout:              cfg.Evaluator.Timeout,
		MaxJobs:              cfg.MaxJobs,
		Logger:               log,
	}, nil
}

// loadFixtures discovers and parses fixtures under roots.
func loadFixtures(cfg *config.Config, roots []string, filter string) ([]*fixture.Fixture, error) {
	paths, err := fixture.Discover(roots, fixture.DiscoverOptions{
		Extensions: cfg.Extensions,
		Filter:     filter,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to discover fixtures", err)
	}

	loader, err := fixture.NewLoader(len(paths))
	if err != nil {
		return nil, err
	}
	// Files that fail to load come back as placeholders; the harness
	// reports each one as fatal without holding up the others.
	return loader.LoadAll(paths), nil
}

// openStore opens the run log at path.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set db in the config")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
