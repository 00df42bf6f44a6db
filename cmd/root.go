package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empirical-se/expertise-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "expertise-cli",
	Short: "Stack Overflow expertise-shape study pipeline",
	Long: "Parses a Stack Exchange data dump, classifies users into expertise shapes\n" +
		"(I, T, Pi, Comb) from their tag activity, extracts answer features, and fits\n" +
		"one logistic regression per shape to reproduce the study's coefficient table.",
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
