package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
	"github.com/sells-group/gazette-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect scan run history",
	Long:  "Commands for listing, viewing, and summarizing persisted scan runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "runs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

type runDetail struct {
	*model.Run
	Outcomes     []model.ProcessingOutcome `json:"outcomes,omitempty"`
	Publications []model.ScoredPublication `json:"publications,omitempty"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "runs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		detail := runDetail{Run: run}

		if withOutcomes, _ := cmd.Flags().GetBool("outcomes"); withOutcomes {
			if detail.Outcomes, err = st.ListOutcomes(ctx, run.ID); err != nil {
				return eris.Wrap(err, "runs show: outcomes")
			}
		}
		if withPubs, _ := cmd.Flags().GetBool("publications"); withPubs {
			if detail.Publications, err = st.ListPublications(ctx, store.PublicationFilter{RunID: run.ID}); err != nil {
				return eris.Wrap(err, "runs show: publications")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "runs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("hours")
		collector := monitoring.NewCollector(st, stalledAfter())
		snap, err := collector.Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, cancelled, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("outcomes", false, "include per-document outcomes")
	runsShowCmd.Flags().Bool("publications", false, "include scored publications")

	runsStatsCmd.Flags().Int("hours", 24, "lookback window in hours")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
