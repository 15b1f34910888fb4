package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fixharness/internal/fixture"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Filter string
}

// ListEntry describes one discovered fixture.
type ListEntry struct {
	Path         string       `json:"path"`
	Name         string       `json:"name"`
	Mode         fixture.Mode `json:"mode"`
	ModeDeclared bool         `json:"mode_declared"`
	Assertions   int          `json:"assertions"`
	Prints       int          `json:"prints"`
	Expected     int          `json:"expected"`
	Error        string       `json:"error,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <path>...",
		Short: "List fixtures with their mode and hook counts",
		Long: `List discovered fixtures without running them.

The mode column shows "static", "runtime" or "mixed"; a trailing "*" marks
a mode derived from the hooks the fixture calls rather than declared with
@tc.mode.

Examples:
  fixharness list ./fixtures
  fixharness list ./fixtures --filter "async*" --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter fixtures by glob pattern")

	return cmd
}

func runList(opts *ListOptions, roots []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	fixtures, err := loadFixtures(cfg, roots, opts.Filter)
	if err != nil {
		return err
	}

	entries := make([]ListEntry, len(fixtures))
	for i, fx := range fixtures {
		entries[i] = ListEntry{
			Path:         fx.Path,
			Name:         fx.Name,
			Mode:         fx.Mode,
			ModeDeclared: fx.ModeDeclared,
			Assertions:   len(fx.Assertions),
			Prints:       len(fx.Prints),
			Expected:     len(fx.Expected),
		}
		if fx.LoadErr != nil {
			entries[i].Error = fx.LoadErr.Error()
		}
	}

	return newFormatter(cmd, opts.Format).Success(entries, func(w io.Writer) error {
		writeListText(w, entries)
		return nil
	})
}

func writeListText(w io.Writer, entries []ListEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No fixtures found.")
		return
	}
	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(w, "%-8s %s: %s\n", "error", e.Path, e.Error)
			continue
		}
		mode := string(e.Mode)
		if !e.ModeDeclared {
			mode += "*"
		}
		fmt.Fprintf(w, "%-8s %3d asserts %3d prints  %s\n", mode, e.Assertions, e.Prints, e.Path)
	}
	fmt.Fprintf(w, "\n%d fixture(s)\n", len(entries))
}
