package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/batch"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan <pdf-or-dir>...",
	Short: "Scan gazette PDFs for OAB registrations",
	Long:  "Extracts text from every PDF given (directories are searched recursively), finds mentions of the target OAB registrations and prints them ranked by relevance. With no targets every registration found is reported.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		oabs, _ := cmd.Flags().GetStringSlice("oab")
		targetsPath, _ := cmd.Flags().GetString("targets")
		noCache, _ := cmd.Flags().GetBool("no-cache")

		targets, err := loadTargets(oabs, targetsPath)
		if err != nil {
			return err
		}
		docs, err := collectDocuments(args)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No PDF documents found.")
			return nil
		}

		opts := scanOptionsFromFlags(cmd)

		env, err := initScan(ctx, !noCache)
		if err != nil {
			return err
		}
		defer env.Close()

		return runScan(ctx, env, docs, targets, opts)
	},
}

type scanOptions struct {
	MinScore  float64
	Workers   int
	ChunkSize int
	Top       int
	JSON      bool
	Verbose   bool
	Progress  bool
}

func scanOptionsFromFlags(cmd *cobra.Command) scanOptions {
	o := scanOptions{
		MinScore:  cfg.Batch.MinScore,
		Workers:   cfg.Batch.Workers,
		ChunkSize: cfg.Batch.ChunkSize,
	}
	if cmd.Flags().Changed("min-score") {
		o.MinScore, _ = cmd.Flags().GetFloat64("min-score")
	}
	if cmd.Flags().Changed("workers") {
		o.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("chunk-size") {
		o.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	}
	o.Top, _ = cmd.Flags().GetInt("top")
	o.JSON, _ = cmd.Flags().GetBool("json")
	o.Verbose, _ = cmd.Flags().GetBool("verbose")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	o.Progress = !noProgress && !o.JSON
	return o
}

func runScan(ctx context.Context, env *scanEnv, docs []model.SourceDocument, targets []model.Identity, opts scanOptions) error {
	log := zap.L().With(zap.Int("documents", len(docs)), zap.Int("targets", len(targets)))

	var run *model.Run
	if env.Store != nil {
		r, err := env.Store.CreateRun(ctx, targets, opts.MinScore, len(docs))
		if err != nil {
			return eris.Wrap(err, "scan: create run")
		}
		run = r
		log = log.With(zap.String("run_id", run.ID))
		if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
			return eris.Wrap(err, "scan: mark run running")
		}
	}

	var bar *progressbar.ProgressBar
	batchOpts := batch.Options{Workers: opts.Workers, ChunkSize: opts.ChunkSize, Metrics: env.Metrics}
	if opts.Progress {
		bar = progressbar.NewOptions(len(docs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
		batchOpts.Progress = func(_, _ int, _ model.ProcessingOutcome) {
			_ = bar.Add(1)
		}
	}

	coord := batch.New(env.Factory, batchOpts)
	var (
		pubs     []model.ScoredPublication
		outcomes []model.ProcessingOutcome
		err      error
	)
	if opts.ChunkSize > 0 && len(docs) > opts.ChunkSize {
		pubs, outcomes, err = coord.ProcessChunked(ctx, docs, targets, opts.MinScore, opts.ChunkSize)
	} else {
		pubs, outcomes, err = coord.Process(ctx, docs, targets, opts.MinScore)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	// Persist even when interrupted so the run is not left running.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		if run != nil {
			_ = env.Store.FinishRun(persistCtx, run.ID, model.RunStatusFailed, nil, err.Error())
		}
		return eris.Wrap(err, "scan")
	}

	stats := batch.Stats(outcomes)
	status := model.RunStatusComplete
	if ctx.Err() != nil {
		status = model.RunStatusCancelled
		log.Warn("scan interrupted, unstarted documents marked cancelled")
	}
	if run != nil {
		if err := saveRun(persistCtx, env.Store, run.ID, status, stats, outcomes, pubs); err != nil {
			return err
		}
	}

	log.Info("scan complete",
		zap.String("status", string(status)),
		zap.Int("publications", len(pubs)),
		zap.Int("failed", stats.Failed),
	)

	if opts.JSON {
		return writeScanJSON(os.Stdout, run, pubs, outcomes, stats)
	}

	if len(pubs) == 0 {
		fmt.Fprintln(os.Stdout, "No publications above the score threshold.")
	} else {
		formatPublications(os.Stdout, pubs, opts.Top)
		if opts.Verbose {
			formatContexts(os.Stdout, pubs, opts.Top)
		}
	}
	fmt.Fprintln(os.Stdout)
	formatBatchStats(os.Stdout, stats)
	if run != nil {
		fmt.Fprintf(os.Stdout, "\nRun ID: %s\n", run.ID)
	}
	return nil
}

func saveRun(ctx context.Context, st store.Store, runID string, status model.RunStatus, stats model.BatchStats, outcomes []model.ProcessingOutcome, pubs []model.ScoredPublication) error {
	if err := st.SaveOutcomes(ctx, runID, outcomes); err != nil {
		_ = st.FinishRun(ctx, runID, model.RunStatusFailed, &stats, err.Error())
		return eris.Wrap(err, "scan: save outcomes")
	}
	if err := st.SavePublications(ctx, runID, pubs); err != nil {
		_ = st.FinishRun(ctx, runID, model.RunStatusFailed, &stats, err.Error())
		return eris.Wrap(err, "scan: save publications")
	}
	return eris.Wrap(st.FinishRun(ctx, runID, status, &stats, ""), "scan: finish run")
}

type scanReport struct {
	RunID        string                    `json:"run_id,omitempty"`
	Stats        model.BatchStats          `json:"stats"`
	Publications []model.ScoredPublication `json:"publications"`
	Outcomes     []model.ProcessingOutcome `json:"outcomes"`
}

func writeScanJSON(out io.Writer, run *model.Run, pubs []model.ScoredPublication, outcomes []model.ProcessingOutcome, stats model.BatchStats) error {
	report := scanReport{Stats: stats, Publications: pubs, Outcomes: outcomes}
	if run != nil {
		report.RunID = run.ID
	}
	if report.Publications == nil {
		report.Publications = []model.ScoredPublication{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func init() {
	f := scanCmd.Flags()
	f.StringSlice("oab", nil, "target registration, e.g. 123456/SP (repeatable)")
	f.String("targets", "", "YAML file with a targets list")
	f.Float64("min-score", 0, "minimum relevance score (default from config)")
	f.Int("workers", 0, "worker count (default 80% of CPU cores)")
	f.Int("chunk-size", 0, "process documents in groups of this size (default from config)")
	f.Int("top", 50, "max publications to print (0 for all)")
	f.Bool("no-cache", false, "bypass the text cache")
	f.Bool("no-progress", false, "disable the progress bar")
	f.Bool("json", false, "write the full report as JSON")
	f.BoolP("verbose", "v", false, "print the context of each publication")
	rootCmd.AddCommand(scanCmd)
}
