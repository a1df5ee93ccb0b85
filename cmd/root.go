package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saifguard/saifguard/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "saifguard",
	Short: "Security design vs. deployment discrepancy analysis",
	Long:  "Extracts security-control claims from design artifacts and cloud resource inventories, reconciles the two, and reports where documented intent and deployed reality disagree.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
