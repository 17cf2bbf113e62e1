package cli

import (
	"fmt"

	"github.com/lazypower/recall/internal/config"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <user-id>",
	Short: "Replace a user's memory with the default seed state",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := eng.ResetUserState(args[0]); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Printf("reset memory for %s\n", args[0])
	return nil
}
