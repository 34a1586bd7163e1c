package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a leading 'v' if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd is the base command when pvdrp is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "pvdrp",
	Short: "PV-correlated detector event pipeline front end",
	Long: `pvdrp is a data-acquisition front end that reads timed detector
events off a DMA ring, correlates each one with asynchronous PV updates
under a bounded-lateness policy, and forwards a single record per event
(possibly damaged) to a downstream event-builder contributor.

- run: connect, configure, and drive the pipeline until interrupted
- inspect: run a bounded demo session and report its match decisions

The DMA/PGP driver and PV transport are simulated in this build: the
real hardware and PV fabric are external collaborators this repository
only consumes through a narrow contract (see internal/dma and
internal/pv).`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints a clean line.
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}
