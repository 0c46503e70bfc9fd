package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gazette-cli/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

const runColumns = `id, status, targets, min_score, documents, stats, error, created_at, updated_at`

// scanRun reads one runs row. JSON columns arrive as bytes from both drivers.
func scanRun(row scannable, prefix string) (*model.Run, error) {
	var (
		r         model.Run
		targets   []byte
		statsJSON []byte
	)
	if err := row.Scan(&r.ID, &r.Status, &targets, &r.MinScore, &r.Documents, &statsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &r.Targets); err != nil {
			return nil, eris.Wrapf(err, "%s: unmarshal targets", prefix)
		}
	}
	if len(statsJSON) > 0 {
		r.Stats = &model.BatchStats{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return nil, eris.Wrapf(err, "%s: unmarshal stats", prefix)
		}
	}
	return &r, nil
}

var outcomeColumns = []string{
	"run_id", "document_path", "success", "match_count", "error",
	"elapsed_ms", "strategy", "cache_hit",
}

func outcomeRow(runID string, o model.ProcessingOutcome) []any {
	return []any{
		runID, o.DocumentPath, o.Success, o.MatchCount, o.Error,
		o.Elapsed.Milliseconds(), o.Strategy, o.CacheHit,
	}
}

func scanOutcome(row scannable) (model.ProcessingOutcome, error) {
	var (
		o         model.ProcessingOutcome
		runID     string
		elapsedMS int64
	)
	err := row.Scan(&runID, &o.DocumentPath, &o.Success, &o.MatchCount, &o.Error, &elapsedMS, &o.Strategy, &o.CacheHit)
	o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return o, err
}

var publicationColumns = []string{
	"run_id", "document_path", "number", "jurisdiction",
	"tribunal", "published_on", "edition",
	"context", "position", "pattern_id", "mention_count",
	"context_score", "density_score", "position_score", "final_score", "act_type",
	"needs_manual_review", "extraction_strategy", "page_count", "document_char_count",
	"processed_at",
}

var publicationKeys = []string{"run_id", "document_path", "number", "jurisdiction"}

// publicationConflict builds the ON CONFLICT clause that refreshes every
// non-key column. quote renders one column name for the target dialect.
func publicationConflict(quote func(string) string) string {
	keys := make([]string, len(publicationKeys))
	for i, k := range publicationKeys {
		keys[i] = quote(k)
	}
	var sets []string
	for _, c := range publicationColumns[len(publicationKeys):] {
		sets = append(sets, quote(c)+" = excluded."+quote(c))
	}
	return ` ON CONFLICT (` + strings.Join(keys, ", ") + `) DO UPDATE SET ` + strings.Join(sets, ", ")
}

func publicationRow(runID string, p model.ScoredPublication) []any {
	var published *time.Time
	if !p.PublishedOn.IsZero() {
		d := p.PublishedOn.UTC()
		published = &d
	}
	return []any{
		runID, p.DocumentPath, p.Number, p.Jurisdiction,
		p.Tribunal, published, p.Edition,
		p.Context, p.Position, p.PatternID, p.MentionCount,
		p.ContextScore, p.DensityScore, p.PositionScore, p.FinalScore, string(p.ActType),
		p.NeedsManualReview, p.ExtractionStrategy, p.PageCount, p.DocumentCharCount,
		p.ProcessedAt.UTC(),
	}
}

func scanPublication(row scannable) (model.ScoredPublication, error) {
	var (
		p         model.ScoredPublication
		runID     string
		published *time.Time
		act       string
	)
	err := row.Scan(
		&runID, &p.DocumentPath, &p.Number, &p.Jurisdiction,
		&p.Tribunal, &published, &p.Edition,
		&p.Context, &p.Position, &p.PatternID, &p.MentionCount,
		&p.ContextScore, &p.DensityScore, &p.PositionScore, &p.FinalScore, &act,
		&p.NeedsManualReview, &p.ExtractionStrategy, &p.PageCount, &p.DocumentCharCount,
		&p.ProcessedAt,
	)
	if published != nil {
		p.PublishedOn = *published
	}
	p.ActType = model.ActType(act)
	return p, err
}
