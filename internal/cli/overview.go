package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lazypower/recall/internal/config"
	"github.com/spf13/cobra"
)

var overviewCmd = &cobra.Command{
	Use:   "overview <user-id>",
	Short: "Print a counts-only overview of a user's memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverview,
}

func runOverview(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	overview, err := eng.GetMemoryOverview(args[0])
	if err != nil {
		return fmt.Errorf("overview: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(overview)
}
