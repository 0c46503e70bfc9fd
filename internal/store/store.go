// Package store persists scan runs, per-document outcomes and scored
// publications.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gazette-cli/internal/config"
	"github.com/sells-group/gazette-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitzero"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// PublicationFilter specifies criteria for listing stored publications.
type PublicationFilter struct {
	RunID        string  `json:"run_id,omitempty"`
	Number       string  `json:"number,omitempty"`
	Jurisdiction string  `json:"jurisdiction,omitempty"`
	MinScore     float64 `json:"min_score,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

// Store defines the persistence interface for scan history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, targets []model.Identity, minScore float64, documents int) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.BatchStats, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveOutcomes(ctx context.Context, runID string, outcomes []model.ProcessingOutcome) error
	SavePublications(ctx context.Context, runID string, pubs []model.ScoredPublication) error
	ListOutcomes(ctx context.Context, runID string) ([]model.ProcessingOutcome, error)
	ListPublications(ctx context.Context, filter PublicationFilter) ([]model.ScoredPublication, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver, migrated and ready. An
// empty driver returns (nil, nil) so callers can treat history as optional.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "gazette.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
