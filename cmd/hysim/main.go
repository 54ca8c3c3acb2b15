// Command hysim compiles, schedules and simulates hybrid-time actor models.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/hysim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own errors on stdout; this is the exit summary.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
