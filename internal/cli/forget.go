package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/spf13/cobra"
)

var (
	forgetMode string
	forgetDays int
	forgetType string
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete memories by date, recency, tag, or exact item",
}

var forgetDateCmd = &cobra.Command{
	Use:   "date <user-id> <YYYY-MM-DD>",
	Short: "Delete everything written on one calendar day",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForget(func(eng *engine.Manager) (*engine.Overview, error) {
			return eng.DeleteByDate(args[0], args[1], forgetMode)
		})
	},
}

var forgetRecentCmd = &cobra.Command{
	Use:   "recent <user-id> <days>",
	Short: "Delete everything written within the last N days",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid days %q: %w", args[1], err)
		}
		return runForget(func(eng *engine.Manager) (*engine.Overview, error) {
			return eng.DeleteRecentDays(args[0], days, forgetMode)
		})
	},
}

var forgetTagCmd = &cobra.Command{
	Use:   "tag <user-id> <tag>",
	Short: "Delete everything containing a substring match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForget(func(eng *engine.Manager) (*engine.Overview, error) {
			return eng.DeleteByTag(args[0], args[1], forgetMode)
		})
	},
}

var forgetItemCmd = &cobra.Command{
	Use:   "item <user-id> <text>",
	Short: "Delete one exact memory entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForget(func(eng *engine.Manager) (*engine.Overview, error) {
			return eng.DeleteMemoryItem(args[0], forgetMode, forgetType, args[1])
		})
	},
}

var forgetPruneCmd = &cobra.Command{
	Use:   "prune <user-id>",
	Short: "Prune history and summaries older than N days",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForget(func(eng *engine.Manager) (*engine.Overview, error) {
			return eng.PruneHistoryByDays(args[0], forgetDays, forgetMode)
		})
	},
}

func runForget(op func(eng *engine.Manager) (*engine.Overview, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	overview, err := op(eng)
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(overview)
}

func init() {
	forgetCmd.PersistentFlags().StringVar(&forgetMode, "mode", "all", "mode scope: normal, uncensored, or all")
	forgetPruneCmd.Flags().IntVar(&forgetDays, "days", 7, "number of days")
	forgetItemCmd.Flags().StringVar(&forgetType, "type", "note", "memory type: goal, pinned, or note")

	forgetCmd.AddCommand(forgetDateCmd)
	forgetCmd.AddCommand(forgetRecentCmd)
	forgetCmd.AddCommand(forgetTagCmd)
	forgetCmd.AddCommand(forgetItemCmd)
	forgetCmd.AddCommand(forgetPruneCmd)
}
