package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Per-user conversational memory for dialogue agents",
	Long:  "Recall manages what a dialogue agent remembers per user: mode-scoped goals, notes and pinned memories with quality scoring and decay, bounded history with lossy summaries, all in a single SQLite file.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(forgetCmd)
}
