// Command fixharness runs engine conformance fixtures.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/fixharness/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
