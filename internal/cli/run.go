package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/fixharness/internal/fixture"
	"github.com/roach88/fixharness/internal/harness"
	"github.com/roach88/fixharness/internal/monitor"
	"github.com/roach88/fixharness/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter   string // fixture filter (glob on file name)
	Parallel int
	Update   bool   // regenerate golden files from captured output
	Database string // record the run in this SQLite run log
	Serve    string // stream events to websocket clients on this address
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	RunID   string            `json:"run_id,omitempty"`
	Results []*harness.Result `json:"results"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Fatal   int               `json:"fatal"`
	Total   int               `json:"total"`
	Updated []string          `json:"updated,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <path>...",
		Short: "Run fixtures",
		Long: `Discover fixtures under the given paths and run them.

Static fixtures check every AssertType against the type oracle. Runtime
fixtures are evaluated and their print output compared against the golden
file, or the inline "// expected" comments when no golden file exists.

Exit codes:
  0 - All fixtures passed
  1 - One or more fixtures failed
  2 - Command error (invalid paths, bad config, etc.)

Examples:
  fixharness run ./fixtures
  fixharness run ./fixtures --filter "async*" --parallel 4
  fixharness run ./fixtures --update
  fixharness run ./fixtures --db runs.db --serve 127.0.0.1:8089`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixtures(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter fixtures by glob pattern")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "fixtures to run at once (default from config, then GOMAXPROCS)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in a SQLite database")
	cmd.Flags().StringVar(&opts.Serve, "serve", "", "serve live events over websocket on this address")

	return cmd
}

func runFixtures(opts *RunOptions, roots []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	parallel := cfg.Parallel
	if opts.Parallel > 0 {
		parallel = opts.Parallel
	}
	dbPath := cfg.DB
	if opts.Database != "" {
		dbPath = opts.Database
	}
	serveAddr := cfg.Monitor.Addr
	if opts.Serve != "" {
		serveAddr = opts.Serve
	}

	fixtures, err := loadFixtures(cfg, roots, opts.Filter)
	if err != nil {
		return err
	}
	if len(fixtures) == 0 {
		return newFormatter(cmd, opts.Format).Success(RunReport{Results: []*harness.Result{}}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, "No fixtures found.")
			return err
		})
	}

	hopts, err := harnessOptions(opts.RootOptions, cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveAddr != "" {
		hub := monitor.NewHub(0, log)
		srv, err := monitor.Listen(serveAddr, hub)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start monitor", err)
		}
		serveCtx, cancelServe := context.WithCancel(ctx)
		defer cancelServe()
		go func() {
			if err := srv.Serve(serveCtx); err != nil {
				log.Warn("monitor stopped", "error", err)
			}
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "monitor: ws://%s/events\n", srv.Addr())
		hopts.OnEvent = hub.Publish
	}

	log.Info("running fixtures", "count", len(fixtures), "parallel", parallel)
	suite := harness.RunSuite(ctx, fixtures, parallel, hopts)

	report := RunReport{}
	if opts.Update {
		report.Updated, err = updateGoldens(fixtures, suite, cfg.GoldenDir)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to update golden files", err)
		}
		if len(report.Updated) > 0 {
			suite = harness.RunSuite(ctx, fixtures, parallel, hopts)
		}
	}

	if dbPath != "" {
		report.RunID, err = recordRun(ctx, opts.RootOptions, dbPath, suite)
		if err != nil {
			return err
		}
	}

	report.Results = suite.Results
	report.Passed = suite.Passed
	report.Failed = suite.Failed
	report.Fatal = suite.Fatal
	report.Total = len(suite.Results)

	out := newFormatter(cmd, opts.Format)
	text := func(w io.Writer) error {
		writeRunText(w, report, opts.Verbose)
		return nil
	}
	if report.Failed > 0 {
		return out.Failure("E_RUN_FAILED", fmt.Sprintf("%d fixture(s) failed", report.Failed), report, text)
	}
	return out.Success(report, text)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// updateGoldens writes captured output as the golden file of every runtime
// fixture that ran to completion. Returns the written paths.
func updateGoldens(fixtures []*fixture.Fixture, suite *harness.SuiteResult, dir string) ([]string, error) {
	var written []string
	for i, fx := range fixtures {
		r := suite.Results[i]
		if !fx.Mode.Runtime() || r.Fatal() {
			continue
		}
		path := harness.GoldenPath(fx, dir)
		if err := harness.WriteGolden(path, r); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// recordRun stores suite as a new run and returns its ID.
func recordRun(ctx context.Context, opts *RootOptions, dbPath string, suite *harness.SuiteResult) (string, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	runID, err := opts.runID()
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to create run id", err)
	}
	if err := st.BeginRun(ctx, store.NewRun(runID, opts.now())); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to record run", err)
	}
	if err := st.WriteSuite(ctx, runID, suite); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to record run", err)
	}
	return runID, nil
}

func writeRunText(w io.Writer, report RunReport, verbose bool) {
	for _, r := range report.Results {
		writeResultText(w, r, verbose)
	}
	for _, p := range report.Updated {
		fmt.Fprintf(w, "updated %s\n", p)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed (%d fatal), %d total\n",
		report.Passed, report.Failed, report.Fatal, report.Total)
	if report.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", report.RunID)
	}
}

func writeResultText(w io.Writer, r *harness.Result, verbose bool) {
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, r.Path)
	for i := range r.Failures {
		fmt.Fprintf(w, "  %s\n", r.Failures[i].Error())
	}
	if verbose {
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "  note: %s\n", d)
		}
	}
}
