package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heartlink/heartlink/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HeartLink daemon",
	Long: `Run the HeartLink daemon: the chat API, account endpoints, the live
credit feed, and Prometheus metrics. Configuration is read from
~/.heartlink/config.toml; missing values fall back to defaults.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return d.Run()
}
