package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of scan history.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsCancelled int     `json:"runs_cancelled"`
	RunsActive    int     `json:"runs_active"`
	RunsStalled   int     `json:"runs_stalled"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Documents across finished runs in the window.
	DocumentsTotal    int     `json:"documents_total"`
	DocumentsFailed   int     `json:"documents_failed"`
	DocumentFailRate  float64 `json:"document_fail_rate"`
	CacheHits         int     `json:"cache_hits"`
	TotalMatches      int     `json:"total_matches"`
	AvgThroughputDocS float64 `json:"avg_throughput_docs_per_sec"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads from.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarizes stored runs.
type Collector struct {
	store        RunLister
	stalledAfter time.Duration
	now          func() time.Time
}

// NewCollector creates a new metrics collector. Runs still queued or running
// whose last update is older than stalledAfter count as stalled; zero
// disables the check.
func NewCollector(st RunLister, stalledAfter time.Duration) *Collector {
	return &Collector{store: st, stalledAfter: stalledAfter, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var throughput float64
	var timedRuns int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusCancelled:
			snap.RunsCancelled++
		case model.RunStatusQueued, model.RunStatusRunning:
			snap.RunsActive++
			if c.stalledAfter > 0 && now.Sub(r.UpdatedAt) > c.stalledAfter {
				snap.RunsStalled++
			}
		}
		if r.Stats != nil {
			snap.DocumentsTotal += r.Stats.Total
			snap.DocumentsFailed += r.Stats.Failed
			snap.CacheHits += r.Stats.CacheHits
			snap.TotalMatches += r.Stats.TotalMatches
			if r.Stats.ThroughputPerSecond > 0 {
				throughput += r.Stats.ThroughputPerSecond
				timedRuns++
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.DocumentsTotal > 0 {
		snap.DocumentFailRate = float64(snap.DocumentsFailed) / float64(snap.DocumentsTotal)
	}
	if timedRuns > 0 {
		snap.AvgThroughputDocS = throughput / float64(timedRuns)
	}
	return snap, nil
}
