package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fixharness/internal/harness"
	"github.com/roach88/fixharness/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string // compare against a stored run instead of a second pass
	RunID    string // stored run to compare against (default: latest)
	Filter   string
}

// ReplayResult is the JSON payload of the replay command.
type ReplayResult struct {
	Baseline      string             `json:"baseline"` // "rerun" or a run ID
	Fixtures      int                `json:"fixtures"`
	Deterministic bool               `json:"deterministic"`
	Diffs         []store.DigestDiff `json:"diffs"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <path>...",
		Short: "Re-run fixtures and verify determinism",
		Long: `Run fixtures and compare each fixture's record digest against a baseline.

Without --db the suite runs twice and the two passes are compared. With
--db the fresh run is compared against a stored run (--run, or the latest).

Exit codes:
  0 - All digests match
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  fixharness replay ./fixtures
  fixharness replay ./fixtures --db runs.db
  fixharness replay ./fixtures --db runs.db --run 0190... --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "compare against a run stored in this database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "stored run ID (default: latest run)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter fixtures by glob pattern")

	return cmd
}

func runReplay(opts *ReplayOptions, roots []string, cmd *cobra.Command) error {
	ctx := cmdContext(cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	fixtures, err := loadFixtures(cfg, roots, opts.Filter)
	if err != nil {
		return err
	}
	hopts, err := harnessOptions(opts.RootOptions, cfg, log)
	if err != nil {
		return err
	}

	current := digests(harness.RunSuite(ctx, fixtures, cfg.Parallel, hopts))

	result := ReplayResult{Baseline: "rerun", Fixtures: len(fixtures)}
	var baseline map[string]string
	if opts.Database != "" {
		result.Baseline, baseline, err = storedDigests(ctx, opts)
		if err != nil {
			return err
		}
		// Only fixtures selected for this replay take part.
		for path := range baseline {
			if _, ok := current[path]; !ok {
				delete(baseline, path)
			}
		}
	} else {
		baseline = digests(harness.RunSuite(ctx, fixtures, cfg.Parallel, hopts))
	}

	result.Diffs = store.CompareDigests(baseline, current)
	result.Deterministic = len(result.Diffs) == 0

	out := newFormatter(cmd, opts.Format)
	text := func(w io.Writer) error {
		writeReplayText(w, result)
		return nil
	}
	if !result.Deterministic {
		return out.Failure("E_NONDETERMINISTIC", fmt.Sprintf("%d fixture(s) differ from baseline", len(result.Diffs)), result, text)
	}
	return out.Success(result, text)
}

func digests(suite *harness.SuiteResult) map[string]string {
	out := make(map[string]string, len(suite.Results))
	for _, r := range suite.Results {
		out[r.Path] = r.Digest
	}
	return out
}

func storedDigests(ctx context.Context, opts *ReplayOptions) (string, map[string]string, error) {
	st, err := openStore(opts.Database)
	if err != nil {
		return "", nil, err
	}
	defer st.Close()

	runID := opts.RunID
	if runID == "" {
		latest, err := st.LatestRun(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, NewExitError(ExitCommandError, "no runs recorded")
		}
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		runID = latest.ID
	}

	d, err := st.ReadDigests(ctx, runID)
	if err != nil {
		return "", nil, WrapExitError(ExitCommandError, "failed to read stored digests", err)
	}
	return runID, d, nil
}

func writeReplayText(w io.Writer, result ReplayResult) {
	for _, d := range result.Diffs {
		fmt.Fprintf(w, "✗ %s\n", d.Path)
		fmt.Fprintf(w, "  baseline: %s\n", orAbsent(d.Left))
		fmt.Fprintf(w, "  current:  %s\n", orAbsent(d.Right))
	}
	if result.Deterministic {
		fmt.Fprintf(w, "✓ %d fixture(s) deterministic against %s\n", result.Fixtures, result.Baseline)
	} else {
		fmt.Fprintf(w, "%d of %d fixture(s) differ from %s\n", len(result.Diffs), result.Fixtures, result.Baseline)
	}
}

func orAbsent(digest string) string {
	if digest == "" {
		return "(absent)"
	}
	return digest
}
