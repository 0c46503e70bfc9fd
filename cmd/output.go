package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/gazette-cli/internal/cache"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
)

// formatPublications writes the top publications as a table. A limit of zero
// or less writes all of them.
func formatPublications(out io.Writer, pubs []model.ScoredPublication, limit int) {
	if limit > 0 && len(pubs) > limit {
		pubs = pubs[:limit]
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tOAB\tTRIBUNAL\tDATE\tACT\tMENTIONS\tREVIEW\tDOCUMENT")
	_, _ = fmt.Fprintln(w, "-----\t---\t--------\t----\t---\t--------\t------\t--------")

	for _, p := range pubs {
		date := ""
		if !p.PublishedOn.IsZero() {
			date = p.PublishedOn.Format(time.DateOnly)
		}
		act := string(p.ActType)
		if act == "" {
			act = "-"
		}
		review := ""
		if p.NeedsManualReview {
			review = "yes"
		}
		_, _ = fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			p.FinalScore,
			p.Identity,
			p.Tribunal,
			date,
			act,
			p.MentionCount,
			review,
			filepath.Base(p.DocumentPath),
		)
	}
	_ = w.Flush()
}

// formatContexts writes each publication's context snippet, for --verbose.
func formatContexts(out io.Writer, pubs []model.ScoredPublication, limit int) {
	if limit > 0 && len(pubs) > limit {
		pubs = pubs[:limit]
	}
	for _, p := range pubs {
		_, _ = fmt.Fprintf(out, "\n[%s] %s @ %d (%s)\n  %s\n",
			p.Identity, filepath.Base(p.DocumentPath), p.Position, p.PatternID,
			strings.Join(strings.Fields(p.Context), " "))
	}
}

// formatBatchStats writes the batch summary followed by one line per failed
// document.
func formatBatchStats(out io.Writer, s model.BatchStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Documents:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d (%.1f%%)\n", s.Succeeded, s.SuccessRate*100)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Cache hits:\t%d\n", s.CacheHits)
	_, _ = fmt.Fprintf(w, "Matches:\t%d (%.2f per document)\n", s.TotalMatches, s.AvgMatchesPerDoc)
	_, _ = fmt.Fprintf(w, "Processing time:\t%s (avg %s)\n", s.TotalElapsed.Round(time.Millisecond), s.AvgElapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "Throughput:\t%.2f docs/s\n", s.ThroughputPerSecond)
	_ = w.Flush()

	if len(s.Errors) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nErrors:")
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(out, "  %s: %s\n", filepath.Base(e.DocumentPath), e.Error)
	}
}

// formatCacheStats writes cache statistics.
func formatCacheStats(out io.Writer, dir string, s cache.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Directory:\t%s\n", dir)
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", s.Entries)
	_, _ = fmt.Fprintf(w, "Size:\t%s\n", humanBytes(s.SizeBytes))
	_ = w.Flush()
}

// formatCacheRecords writes index records as a table, newest first.
func formatCacheRecords(out io.Writer, recs []cache.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "HASH\tSTRATEGY\tCACHED\tPAGES\tCHARS\tSIZE\tPATH")
	_, _ = fmt.Fprintln(w, "----\t--------\t------\t-----\t-----\t----\t----")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.Hash),
			r.Strategy,
			r.CachedAt.Local().Format("2006-01-02 15:04"),
			r.PageCount,
			r.CharCount,
			humanBytes(r.FileSize),
			r.Path,
		)
	}
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tTARGETS\tDOCS\tMATCHES\tFAILED\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t----\t-------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		matches, failed := "", ""
		if r.Stats != nil {
			matches = fmt.Sprint(r.Stats.TotalMatches)
			failed = fmt.Sprint(r.Stats.Failed)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			formatTargets(r.Targets, 3),
			r.Documents,
			matches,
			failed,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatSnapshot writes aggregate run statistics to w.
func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.RunsTotal)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.RunsComplete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.RunsFailed, s.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.RunsCancelled)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.RunsActive)
	if s.RunsStalled > 0 {
		_, _ = fmt.Fprintf(w, "  Stalled:\t%d\n", s.RunsStalled)
	}
	_, _ = fmt.Fprintf(w, "Documents:\t%d\n", s.DocumentsTotal)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d (%.1f%%)\n", s.DocumentsFailed, s.DocumentFailRate*100)
	_, _ = fmt.Fprintf(w, "  Cache hits:\t%d\n", s.CacheHits)
	_, _ = fmt.Fprintf(w, "Matches:\t%d\n", s.TotalMatches)
	if s.AvgThroughputDocS > 0 {
		_, _ = fmt.Fprintf(w, "Avg throughput:\t%.2f docs/s\n", s.AvgThroughputDocS)
	}
	_ = w.Flush()
}

// formatTargets joins at most n identities, summarizing the rest.
func formatTargets(ids []model.Identity, n int) string {
	if len(ids) == 0 {
		return "(all)"
	}
	parts := make([]string, 0, n+1)
	for i, id := range ids {
		if i == n {
			parts = append(parts, fmt.Sprintf("+%d", len(ids)-n))
			break
		}
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}

// truncateID returns the first 8 characters of an ID or hash for compact
// display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
