package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gazette-cli/internal/extract"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
)

// CancelledError is the outcome error of a document that was never started
// because the batch was cancelled.
const CancelledError = "cancelled"

// PipelineFactory builds the pipeline for one worker slot.
type PipelineFactory func() (*Pipeline, error)

// ProgressFunc is called once per document as its outcome is recorded,
// including documents skipped by cancellation. Calls are serialized.
type ProgressFunc func(done, total int, outcome model.ProcessingOutcome)

// Options configures a Coordinator.
type Options struct {
	// Workers is the pool size. Zero means DefaultWorkers().
	Workers int
	// ChunkSize is the group size used by ProcessChunked. Zero means
	// DefaultChunkSize.
	ChunkSize int
	Progress  ProgressFunc
	Metrics   *monitoring.Metrics
}

// DefaultChunkSize is used by ProcessChunked when no size is configured.
const DefaultChunkSize = 10

// Coordinator fans documents out over a bounded pool of pipelines.
type Coordinator struct {
	newPipeline PipelineFactory
	workers     int
	chunkSize   int
	progress    ProgressFunc
	metrics     *monitoring.Metrics
}

// New creates a Coordinator.
func New(factory PipelineFactory, opts Options) *Coordinator {
	c := &Coordinator{
		newPipeline: factory,
		workers:     opts.Workers,
		chunkSize:   opts.ChunkSize,
		progress:    opts.Progress,
		metrics:     opts.Metrics,
	}
	if c.workers <= 0 {
		c.workers = DefaultWorkers()
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	return c
}

// Workers returns the configured pool size.
func (c *Coordinator) Workers() int { return c.workers }

// Process runs every document through the pipeline and returns publications
// sorted by final score descending and one outcome per distinct document
// path, in input order. The only error is a failure to build the worker
// pipelines, which happens before any document starts.
//
// Once ctx is cancelled no new document starts. Documents already in flight
// run to completion and documents never started get a "cancelled" outcome.
func (c *Coordinator) Process(ctx context.Context, docs []model.SourceDocument, targets []model.Identity, minScore float64) ([]model.ScoredPublication, []model.ProcessingOutcome, error) {
	docs = dedupe(docs)
	t := newTally(len(docs), 0, c.progress)
	if err := c.run(ctx, docs, targets, minScore, t); err != nil {
		return nil, nil, err
	}
	pubs, outcomes := t.results(docs)
	sortPublications(pubs)
	return pubs, outcomes, nil
}

// ProcessChunked is Process over consecutive groups of chunkSize documents,
// bounding how many pipelines and results are live at once. A chunkSize of
// zero uses the configured chunk size. Chunks are never smaller than the
// worker pool.
func (c *Coordinator) ProcessChunked(ctx context.Context, docs []model.SourceDocument, targets []model.Identity, minScore float64, chunkSize int) ([]model.ScoredPublication, []model.ProcessingOutcome, error) {
	chunkSize = c.effectiveChunkSize(chunkSize)
	docs = dedupe(docs)
	chunks := (len(docs) + chunkSize - 1) / chunkSize
	log := zap.L().With(zap.Int("documents", len(docs)), zap.Int("chunk_size", chunkSize), zap.Int("chunks", chunks))
	log.Info("batch: processing in chunks")

	var (
		allPubs     []model.ScoredPublication
		allOutcomes = make([]model.ProcessingOutcome, 0, len(docs))
	)
	for i := 0; i < len(docs); i += chunkSize {
		chunk := docs[i:min(i+chunkSize, len(docs))]
		log.Debug("batch: chunk started", zap.Int("chunk", i/chunkSize+1))

		t := newTally(len(docs), i, c.progress)
		if err := c.run(ctx, chunk, targets, minScore, t); err != nil {
			return nil, nil, err
		}
		pubs, outcomes := t.results(chunk)
		allPubs = append(allPubs, pubs...)
		allOutcomes = append(allOutcomes, outcomes...)
	}

	sortPublications(allPubs)
	log.Info("batch: all chunks processed",
		zap.Int("publications", len(allPubs)),
		zap.Int("outcomes", len(allOutcomes)),
	)
	return allPubs, allOutcomes, nil
}

func (c *Coordinator) effectiveChunkSize(n int) int {
	if n <= 0 {
		n = c.chunkSize
	}
	return max(n, c.workers)
}

func (c *Coordinator) run(ctx context.Context, docs []model.SourceDocument, targets []model.Identity, minScore float64, t *tally) error {
	if len(docs) == 0 {
		return nil
	}
	workers := min(c.workers, len(docs))

	// Build every pipeline up front so a missing backend aborts the run
	// before any document is touched.
	pool := make(chan *Pipeline, workers)
	for range workers {
		p, err := c.newPipeline()
		if err != nil {
			return eris.Wrap(err, "batch: build pipeline")
		}
		pool <- p
	}

	zap.L().Info("batch: started",
		zap.Int("documents", len(docs)),
		zap.Int("targets", len(targets)),
		zap.Int("workers", workers),
		zap.Float64("min_score", minScore),
	)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(workers)
	for _, doc := range docs {
		if ctx.Err() != nil {
			c.skip(t, doc)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				c.skip(t, doc)
				return nil
			}
			p := <-pool
			defer func() { pool <- p }()

			// In-flight documents finish even if the batch is cancelled.
			pubs, outcome := c.processOne(context.WithoutCancel(ctx), p, doc, targets, minScore)
			t.record(outcome, pubs)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch: finished",
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
	return nil
}

func (c *Coordinator) skip(t *tally, doc model.SourceDocument) {
	c.metrics.DocumentSkipped(CancelledError)
	t.record(model.ProcessingOutcome{DocumentPath: doc.Path, Error: CancelledError}, nil)
}

// processOne converts a panic anywhere in the pipeline into a failed outcome.
func (c *Coordinator) processOne(ctx context.Context, p *Pipeline, doc model.SourceDocument, targets []model.Identity, minScore float64) (pubs []model.ScoredPublication, outcome model.ProcessingOutcome) {
	start := time.Now()
	c.metrics.DocumentStarted()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("batch: pipeline panic",
				zap.String("path", doc.Path),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			pubs = nil
			outcome = model.ProcessingOutcome{
				DocumentPath: doc.Path,
				Error:        fmt.Sprintf("batch: pipeline panic: %v", r),
				Strategy:     extract.StrategyFailed,
				Elapsed:      time.Since(start),
			}
		}

		status, review := "failed", 0
		if outcome.Success {
			status = "success"
		}
		for _, pub := range pubs {
			if pub.NeedsManualReview {
				review++
			}
		}
		c.metrics.DocumentFinished(status, time.Since(start), len(pubs), review)
	}()
	return p.Process(ctx, doc, targets, minScore)
}

// tally collects outcomes keyed by document path as workers finish in any
// order.
type tally struct {
	mu       sync.Mutex
	outcomes map[string]model.ProcessingOutcome
	pubs     []model.ScoredPublication
	done     int
	total    int
	progress ProgressFunc
}

func newTally(total, done int, progress ProgressFunc) *tally {
	return &tally{
		outcomes: make(map[string]model.ProcessingOutcome),
		done:     done,
		total:    total,
		progress: progress,
	}
}

func (t *tally) record(outcome model.ProcessingOutcome, pubs []model.ScoredPublication) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[outcome.DocumentPath] = outcome
	t.pubs = append(t.pubs, pubs...)
	t.done++
	if t.progress != nil {
		t.progress(t.done, t.total, outcome)
	}
}

func (t *tally) results(docs []model.SourceDocument) ([]model.ScoredPublication, []model.ProcessingOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	outcomes := make([]model.ProcessingOutcome, 0, len(docs))
	for _, d := range docs {
		if o, ok := t.outcomes[d.Path]; ok {
			outcomes = append(outcomes, o)
		}
	}
	return t.pubs, outcomes
}

// dedupe drops repeated paths, keeping the first occurrence.
func dedupe(docs []model.SourceDocument) []model.SourceDocument {
	seen := make(map[string]bool, len(docs))
	out := make([]model.SourceDocument, 0, len(docs))
	for _, d := range docs {
		if seen[d.Path] {
			zap.L().Warn("batch: duplicate document skipped", zap.String("path", d.Path))
			continue
		}
		seen[d.Path] = true
		out = append(out, d)
	}
	return out
}

func sortPublications(pubs []model.ScoredPublication) {
	sort.SliceStable(pubs, func(i, j int) bool {
		if pubs[i].FinalScore != pubs[j].FinalScore {
			return pubs[i].FinalScore > pubs[j].FinalScore
		}
		if pubs[i].DocumentPath != pubs[j].DocumentPath {
			return pubs[i].DocumentPath < pubs[j].DocumentPath
		}
		return pubs[i].Position < pubs[j].Position
	})
}
