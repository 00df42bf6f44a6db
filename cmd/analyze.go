package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empirical-se/expertise-cli/internal/dump"
	"github.com/empirical-se/expertise-cli/internal/feature"
	"github.com/empirical-se/expertise-cli/internal/fit"
	"github.com/empirical-se/expertise-cli/internal/model"
	"github.com/empirical-se/expertise-cli/internal/report"
	"github.com/empirical-se/expertise-cli/internal/shape"
	"github.com/empirical-se/expertise-cli/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full expertise-shape analysis",
	Long: `Runs the complete pipeline: loads the dump tables, classifies retained
users into expertise shapes, extracts answer features, fits one logistic
regression per shape, and renders the coefficient table.

Examples:
  # Analyze a dump with default thresholds
  analyze --dump-dir ./stackexchange

  # Restrict to the top 50 tags and users with >= 500 reputation
  analyze --top-tags 50 --min-reputation 500

  # Write the table, a spreadsheet, and persist the run
  analyze --output ./results --xlsx --save`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("dump-dir", "", "dump directory (overrides config)")
	f.Int("top-tags", 0, "top-N tag cutoff (overrides config)")
	f.Int("min-reputation", 0, "minimum reputation threshold (overrides config)")
	f.String("output", "", "output directory (overrides config)")
	f.Bool("xlsx", false, "also write an XLSX spreadsheet")
	f.Bool("save", false, "persist the run to the store")

	rootCmd.AddCommand(analyzeCmd)
}

// applyFilterOverrides copies CLI flag values over the loaded config.
func applyFilterOverrides(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("dump-dir"); v != "" {
		cfg.Dump.Dir = v
	}
	if v, _ := cmd.Flags().GetInt("top-tags"); v > 0 {
		cfg.Filter.TopNTags = v
	}
	if v, _ := cmd.Flags().GetInt("min-reputation"); v > 0 {
		cfg.Filter.MinReputation = v
	}
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyFilterOverrides(cmd)
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output.Dir = v
	}
	if v, _ := cmd.Flags().GetBool("xlsx"); v {
		cfg.Output.XLSX = true
	}
	save, _ := cmd.Flags().GetBool("save")

	log := zap.L().With(zap.String("command", "analyze"))

	var st store.Store
	var run *model.Run
	if save {
		var err error
		st, err = initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run = store.NewRun(cfg.Dump.Dir, cfg.Filter.TopNTags, cfg.Filter.MinReputation)
		if err := st.CreateRun(ctx, run); err != nil {
			return err
		}
	}

	results, ds, dist, err := analyze(ctx, log)
	if save {
		if err != nil {
			run.Status = model.RunStatusFailed
			run.Error = err.Error()
			if ferr := st.FinishRun(ctx, run); ferr != nil {
				log.Warn("could not record failed run", zap.Error(ferr))
			}
		} else {
			run.Status = model.RunStatusComplete
			run.Users = len(ds.Users)
			run.Answers = len(ds.Answers)
			run.Malformed = ds.Stats.TotalMalformed()
			if serr := saveResults(ctx, st, run, dist, results); serr != nil {
				return serr
			}
			fmt.Printf("Run %s saved to store\n", run.ID)
		}
	}
	return err
}

// analyze executes the four pipeline stages and writes the output
// artifacts. It is separated from run bookkeeping so a failure anywhere
// marks the persisted run as failed.
func analyze(ctx context.Context, log *zap.Logger) ([]fit.Result, *dump.Dataset, map[model.Shape]int, error) {
	ds, err := dump.Load(ctx, cfg.Dump, cfg.Filter)
	if err != nil {
		return nil, nil, nil, err
	}

	shapes := shape.Assign(ds.Users, cfg.Shape)
	dist := shape.Distribution(shapes)
	log.Info("users classified",
		zap.Int("I", dist[model.ShapeI]),
		zap.Int("T", dist[model.ShapeT]),
		zap.Int("Pi", dist[model.ShapePi]),
		zap.Int("Comb", dist[model.ShapeComb]),
	)

	byShape := feature.ExtractAll(ds.Answers, shapes, cfg.Feature)

	results, err := fit.FitAll(ctx, byShape, cfg.Fit)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := report.RenderTable(os.Stdout, results); err != nil {
		return nil, nil, nil, err
	}
	if n := ds.Stats.TotalMalformed(); n > 0 {
		fmt.Printf("Skipped %d malformed dump rows\n", n)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, nil, nil, eris.Wrapf(err, "analyze: create output dir %s", cfg.Output.Dir)
	}

	csvPath := filepath.Join(cfg.Output.Dir, "coefficients.csv")
	if err := report.WriteCSV(csvPath, results); err != nil {
		return nil, nil, nil, err
	}
	fmt.Printf("Coefficient table written to %s\n", csvPath)

	if cfg.Output.XLSX {
		xlsxPath := filepath.Join(cfg.Output.Dir, "coefficients.xlsx")
		if err := report.WriteXLSX(xlsxPath, results); err != nil {
			return nil, nil, nil, err
		}
		fmt.Printf("Spreadsheet written to %s\n", xlsxPath)
	}

	return results, ds, dist, nil
}

func saveResults(ctx context.Context, st store.Store, run *model.Run, dist map[model.Shape]int, results []fit.Result) error {
	if err := st.SaveShapeCounts(ctx, run.ID, dist); err != nil {
		return err
	}

	var rows []model.CoefficientRow
	for _, r := range results {
		rows = append(rows, r.Rows()...)
	}
	if err := st.SaveCoefficients(ctx, run.ID, rows); err != nil {
		return err
	}

	return st.FinishRun(ctx, run)
}
