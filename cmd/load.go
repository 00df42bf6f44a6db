package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empirical-se/expertise-cli/internal/dump"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load and filter a dump without fitting",
	Long: `Parses the Tags, Users, and Posts tables, applies the top-N tag and
minimum-reputation filters, and prints what was retained. Useful for
checking a dump before running the full analysis.`,
	RunE: runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.String("dump-dir", "", "dump directory (overrides config)")
	f.Int("top-tags", 0, "top-N tag cutoff (overrides config)")
	f.Int("min-reputation", 0, "minimum reputation threshold (overrides config)")

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyFilterOverrides(cmd)
	log := zap.L().With(zap.String("command", "load"))

	ds, err := dump.Load(ctx, cfg.Dump, cfg.Filter)
	if err != nil {
		return err
	}
	log.Info("dump loaded",
		zap.Int("tags", len(ds.TopTags)),
		zap.Int("users", len(ds.Users)),
		zap.Int("answers", len(ds.Answers)),
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Tag rows read:\t%d\n", ds.Stats.TagsRead)
	fmt.Fprintf(w, "User rows read:\t%d\n", ds.Stats.UsersRead)
	fmt.Fprintf(w, "Post rows read:\t%d\n", ds.Stats.PostsRead)
	fmt.Fprintf(w, "Questions seen:\t%d\n", ds.Stats.Questions)
	fmt.Fprintf(w, "Tags retained:\t%d\n", len(ds.TopTags))
	fmt.Fprintf(w, "Users retained:\t%d\n", len(ds.Users))
	fmt.Fprintf(w, "Answers retained:\t%d\n", len(ds.Answers))
	if err := w.Flush(); err != nil {
		return err
	}

	if len(ds.Stats.Malformed) > 0 {
		fmt.Println()
		fmt.Println("Malformed rows skipped:")
		tables := make([]string, 0, len(ds.Stats.Malformed))
		for table := range ds.Stats.Malformed {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Printf("  %s: %d\n", table, ds.Stats.Malformed[table])
		}
	}

	return nil
}
