// Package cli implements the heartlink command-line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "heartlink",
	Short: "HeartLink metered conversation engine",
	Long: `HeartLink runs the metered conversation engine behind the compatibility
report: credit-metered AI chat grounded in personality profiles, with
paired mode for linked partners.

Start the service with 'heartlink serve'; manage accounts with
'heartlink account'.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
