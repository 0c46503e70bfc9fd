package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gazette-cli/internal/batch"
	"github.com/sells-group/gazette-cli/internal/extract"
	"github.com/sells-group/gazette-cli/internal/matcher"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/scorer"
)

// strategyText marks publications scored from a plain text input.
const strategyText = "text"

var matchCmd = &cobra.Command{
	Use:   "match <pdf|txt|->",
	Short: "Find and score OAB registrations in a single document",
	Long:  "Runs matching and scoring on one PDF, or on plain text read from a file or stdin (\"-\"), and prints every publication with its context.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		oabs, _ := cmd.Flags().GetStringSlice("oab")
		targets, err := loadTargets(oabs, "")
		if err != nil {
			return err
		}
		minScore := cfg.Batch.MinScore
		if cmd.Flags().Changed("min-score") {
			minScore, _ = cmd.Flags().GetFloat64("min-score")
		}

		pubs, err := matchDocument(ctx, args[0], targets, minScore)
		if err != nil {
			return err
		}
		if len(pubs) == 0 {
			fmt.Fprintln(os.Stdout, "No publications above the score threshold.")
			return nil
		}
		formatPublications(os.Stdout, pubs, 0)
		formatContexts(os.Stdout, pubs, 0)
		return nil
	},
}

func matchDocument(ctx context.Context, path string, targets []model.Identity, minScore float64) ([]model.ScoredPublication, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		doc, err := model.NewSourceDocument(path)
		if err != nil {
			return nil, err
		}
		env, err := initScan(ctx, true)
		if err != nil {
			return nil, err
		}
		defer env.Close()

		p, err := env.Factory()
		if err != nil {
			return nil, err
		}
		pubs, outcome := p.Process(ctx, doc, targets, minScore)
		if !outcome.Success {
			return nil, eris.New(outcome.Error)
		}
		return pubs, nil
	}

	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	if err := scorer.ValidateConfig(cfg.Scoring); err != nil {
		return nil, err
	}
	p := batch.NewPipeline(textSource(text), nil, matcher.New(), scorer.New(cfg.Scoring), nil)
	pubs, _ := p.Process(ctx, model.SourceDocument{Path: path}, targets, minScore)
	return pubs, nil
}

func readText(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", eris.Wrapf(err, "read %s", path)
	}
	if !utf8.Valid(data) {
		return "", eris.Errorf("%s is not UTF-8 text", path)
	}
	return extract.Normalize(string(data)), nil
}

// textSource is an extractor over text that is already in memory.
type textSource string

func (t textSource) Extract(context.Context, model.SourceDocument) extract.Result {
	return extract.Result{
		Text:      string(t),
		Strategy:  strategyText,
		CharCount: utf8.RuneCountInString(string(t)),
		Success:   true,
	}
}

func init() {
	matchCmd.Flags().StringSlice("oab", nil, "target registration, e.g. 123456/SP (repeatable)")
	matchCmd.Flags().Float64("min-score", 0, "minimum relevance score (default from config)")
	rootCmd.AddCommand(matchCmd)
}
