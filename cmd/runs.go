package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/empirical-se/expertise-cli/internal/model"
	"github.com/empirical-se/expertise-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted analysis runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's shape counts and coefficients",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDUMP\tUSERS\tANSWERS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Status, r.DumpDir, r.Users, r.Answers,
			r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", run.ID)
	fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	fmt.Fprintf(w, "Dump dir:\t%s\n", run.DumpDir)
	fmt.Fprintf(w, "Top tags:\t%d\n", run.TopTags)
	fmt.Fprintf(w, "Min reputation:\t%d\n", run.MinReputation)
	fmt.Fprintf(w, "Users:\t%d\n", run.Users)
	fmt.Fprintf(w, "Answers:\t%d\n", run.Answers)
	fmt.Fprintf(w, "Malformed rows:\t%d\n", run.Malformed)
	fmt.Fprintf(w, "Created:\t%s\n", run.CreatedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:\t%s\n", run.FinishedAt.Format(time.RFC3339))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	counts, err := st.GetShapeCounts(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		fmt.Println()
		fmt.Println("Shape distribution:")
		for _, s := range model.Shapes {
			fmt.Printf("  %-5s %d\n", s, counts[s])
		}
	}

	rows, err := st.GetCoefficients(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		fmt.Println()
		cw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(cw, "SHAPE\tFEATURE\tVALUE\tSTDERR\tP\tSTARS\tCONVERGED")
		for _, r := range rows {
			fmt.Fprintf(cw, "%s\t%s\t%.3f\t%.3f\t%.4f\t%s\t%t\n",
				r.Shape, r.Feature, r.Value, r.StdErr, r.P, r.Stars, r.Converged)
		}
		if err := cw.Flush(); err != nil {
			return err
		}
	}

	return nil
}
