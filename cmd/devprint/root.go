package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for devprint.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devprint",
		Short: "Device fingerprint aggregator",
		Long: `devprint runs a set of signal probes against the local machine, a headless
browser or recorded captures, and condenses the results into a stable
fingerprint that recognizes a returning device without cookies.

Every probe is isolated: a slow, failing or missing capability is recorded
as such and never aborts the run.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	cmd.AddCommand(NewCollectCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
