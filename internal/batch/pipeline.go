// Package batch runs the per-document pipeline (cache, extraction, matching,
// scoring) over many gazettes with a bounded worker pool.
package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/cache"
	"github.com/sells-group/gazette-cli/internal/extract"
	"github.com/sells-group/gazette-cli/internal/matcher"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
	"github.com/sells-group/gazette-cli/internal/scorer"
)

// Extractor turns a document into text.
type Extractor interface {
	Extract(ctx context.Context, doc model.SourceDocument) extract.Result
}

// TextCache is the subset of cache.Cache the pipeline uses.
type TextCache interface {
	Get(ctx context.Context, doc model.SourceDocument) (*cache.Entry, bool)
	Save(ctx context.Context, doc model.SourceDocument, text, strategy string, pageCount int, metadata map[string]any) error
}

// Pipeline processes one document at a time. A Pipeline is owned by a single
// worker and is not safe for concurrent use.
type Pipeline struct {
	extractor Extractor
	cache     TextCache
	matcher   *matcher.Matcher
	scorer    *scorer.Scorer
	metrics   *monitoring.Metrics
	now       func() time.Time
}

// NewPipeline assembles a pipeline. textCache and metrics may be nil.
func NewPipeline(extractor Extractor, textCache TextCache, m *matcher.Matcher, s *scorer.Scorer, metrics *monitoring.Metrics) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		cache:     textCache,
		matcher:   m,
		scorer:    s,
		metrics:   metrics,
		now:       time.Now,
	}
}

type document struct {
	text      string
	strategy  string
	pageCount int
	charCount int
	cacheHit  bool
}

// Process runs the full pipeline on doc. It never returns an error: failures
// are reported in the outcome. With no targets every identity found is
// scored.
func (p *Pipeline) Process(ctx context.Context, doc model.SourceDocument, targets []model.Identity, minScore float64) ([]model.ScoredPublication, model.ProcessingOutcome) {
	start := p.now()
	log := zap.L().With(zap.String("path", doc.Path))
	outcome := model.ProcessingOutcome{DocumentPath: doc.Path}

	d, err := p.load(ctx, doc)
	if err != nil {
		outcome.Error = err.Error()
		outcome.Strategy = extract.StrategyFailed
		outcome.Elapsed = p.now().Sub(start)
		log.Warn("batch: document failed", zap.Error(err))
		return nil, outcome
	}
	outcome.Strategy = d.strategy
	outcome.CacheHit = d.cacheHit

	pubs := p.score(doc, d, targets, minScore)

	outcome.Success = true
	outcome.MatchCount = len(pubs)
	outcome.Elapsed = p.now().Sub(start)
	log.Debug("batch: document processed",
		zap.String("strategy", d.strategy),
		zap.Bool("cache_hit", d.cacheHit),
		zap.Int("matches", len(pubs)),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	return pubs, outcome
}

func (p *Pipeline) load(ctx context.Context, doc model.SourceDocument) (document, error) {
	if p.cache != nil {
		if e, ok := p.cache.Get(ctx, doc); ok {
			return document{
				text:      e.Text,
				strategy:  e.Strategy,
				pageCount: e.PageCount,
				charCount: e.CharCount,
				cacheHit:  true,
			}, nil
		}
	}

	res := p.extractor.Extract(ctx, doc)
	p.metrics.RecordExtraction(res.Strategy, res.Success, res.Elapsed)
	if !res.Success {
		return document{}, res.Err
	}

	if p.cache != nil {
		// A failed save only costs a re-extraction next run.
		_ = p.cache.Save(ctx, doc, res.Text, res.Strategy, res.PageCount, res.Metadata)
	}
	return document{
		text:      res.Text,
		strategy:  res.Strategy,
		pageCount: res.PageCount,
		charCount: res.CharCount,
	}, nil
}

func (p *Pipeline) score(doc model.SourceDocument, d document, targets []model.Identity, minScore float64) []model.ScoredPublication {
	threshold := p.scorer.CandidateThreshold(minScore)
	var candidates []model.CandidateMatch
	if len(targets) == 0 {
		candidates = p.matcher.FindAll(d.text, threshold)
	} else {
		candidates = p.matcher.FindTargets(d.text, targets, threshold)
	}
	if len(candidates) == 0 {
		return nil
	}

	meta := model.ParseDocumentMeta(doc.Path)
	if !meta.Known {
		zap.L().Warn("batch: gazette name not recognized",
			zap.String("path", doc.Path),
			zap.String("tribunal", meta.Tribunal),
		)
	}

	viaOCR := extract.IsOCR(d.strategy)
	processedAt := p.now().UTC()
	pageCount := d.pageCount
	if pageCount == 0 {
		pageCount = doc.PageCount
	}

	pubs := make([]model.ScoredPublication, 0, len(candidates))
	for _, c := range candidates {
		mentions := max(1, p.matcher.CountMentions(d.text, c.Identity))
		b := p.scorer.Evaluate(scorer.Input{
			Candidate:    c,
			MentionCount: mentions,
			DocLength:    len(d.text),
			ViaOCR:       viaOCR,
		})
		if b.FinalScore < minScore {
			continue
		}
		pubs = append(pubs, model.ScoredPublication{
			DocumentPath:       doc.Path,
			Tribunal:           meta.Tribunal,
			PublishedOn:        meta.PublishedOn,
			Edition:            meta.Edition,
			Identity:           c.Identity,
			Context:            c.Context,
			Position:           c.Start,
			PatternID:          c.PatternID,
			MentionCount:       mentions,
			ContextScore:       c.ContextScore,
			DensityScore:       b.DensityScore,
			PositionScore:      b.PositionScore,
			FinalScore:         b.FinalScore,
			ActType:            b.ActType,
			NeedsManualReview:  b.NeedsManualReview,
			ExtractionStrategy: d.strategy,
			PageCount:          pageCount,
			DocumentCharCount:  d.charCount,
			ProcessedAt:        processedAt,
		})
	}
	return pubs
}
