package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fixharness/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
}

// TraceResult is the JSON payload of the trace command.
type TraceResult struct {
	RunID  string          `json:"run_id"`
	Result *harness.Result `json:"result"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <fixture>",
		Short: "Show the stored records of one fixture",
		Long: `Show the assertion and output records stored for a fixture, in the
order they were produced. The fixture is named by its path or its name.

Examples:
  fixharness trace --db runs.db asyncgeneratorthrow
  fixharness trace --db runs.db --run 0190... fixtures/redeclare.ts`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, key string, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runID := opts.RunID
	if runID == "" {
		latest, err := st.LatestRun(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, "no runs recorded")
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		runID = latest.ID
	}

	path, err := st.FindResult(ctx, runID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("fixture %q not found in run %s", key, runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find fixture", err)
	}

	result, err := st.ReadResult(ctx, runID, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read fixture records", err)
	}

	return newFormatter(cmd, opts.Format).Success(TraceResult{RunID: runID, Result: result}, func(w io.Writer) error {
		writeTraceText(w, runID, result, opts.Verbose)
		return nil
	})
}

func writeTraceText(w io.Writer, runID string, r *harness.Result, verbose bool) {
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(w, "Fixture: %s (%s)\n", r.Fixture, r.Path)
	fmt.Fprintf(w, "Run:     %s\n", runID)
	fmt.Fprintf(w, "Mode:    %s\n", r.Mode)
	fmt.Fprintf(w, "Status:  %s\n", status)
	if verbose {
		fmt.Fprintf(w, "Digest:  %s\n", r.Digest)
	}

	if len(r.Assertions) > 0 {
		fmt.Fprintln(w, "\nAssertions:")
		for _, a := range r.Assertions {
			mark := "✓"
			if !a.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s [%d] line %d  AssertType(%s, %q) -> %q\n",
				mark, a.Seq, a.Site.Line, a.Site.Expr, a.Site.Expected, a.Actual)
		}
	}

	if len(r.Outputs) > 0 {
		fmt.Fprintln(w, "\nOutput:")
		for _, o := range r.Outputs {
			fmt.Fprintf(w, "  [%d] %s\n", o.Seq, o.Text)
		}
	}

	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics:")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for i := range r.Failures {
			fmt.Fprintf(w, "  %s\n", r.Failures[i].Error())
		}
	}
}
