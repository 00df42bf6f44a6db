package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empirical-se/expertise-cli/internal/dump"
	"github.com/empirical-se/expertise-cli/internal/report"
	"github.com/empirical-se/expertise-cli/internal/shape"
)

var shapesCmd = &cobra.Command{
	Use:   "shapes",
	Short: "Classify users and print the shape distribution",
	RunE:  runShapes,
}

func init() {
	f := shapesCmd.Flags()
	f.String("dump-dir", "", "dump directory (overrides config)")
	f.Int("top-tags", 0, "top-N tag cutoff (overrides config)")
	f.Int("min-reputation", 0, "minimum reputation threshold (overrides config)")

	rootCmd.AddCommand(shapesCmd)
}

func runShapes(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyFilterOverrides(cmd)
	log := zap.L().With(zap.String("command", "shapes"))

	ds, err := dump.Load(ctx, cfg.Dump, cfg.Filter)
	if err != nil {
		return err
	}

	shapes := shape.Assign(ds.Users, cfg.Shape)
	dist := shape.Distribution(shapes)
	log.Info("users classified", zap.Int("total", len(shapes)))

	return report.RenderDistribution(os.Stdout, dist)
}
