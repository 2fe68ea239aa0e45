package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "marketscope",
	Short: "CBSA-level market analysis for wealth management",
	Long:  "Syncs county-level federal statistics (ACS, BEA, FDIC SOD, OEWS, IRS SOI), rolls them up to metro areas through the Census CBSA crosswalk, scores each market, and surfaces underserved wealth-management territories.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if _, err := config.InitLogger(cfg); err != nil {
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
