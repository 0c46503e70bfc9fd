package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gazette-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pgPool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, status, targets, min_score, documents, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"finish_run":        `UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
	"get_run":           `SELECT ` + runColumns + ` FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'queued',
	targets    JSONB NOT NULL,
	min_score  DOUBLE PRECISION NOT NULL,
	documents  INTEGER NOT NULL DEFAULT 0,
	stats      JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outcomes (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	document_path TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	match_count   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	elapsed_ms    BIGINT NOT NULL DEFAULT 0,
	strategy      TEXT NOT NULL DEFAULT '',
	cache_hit     BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS publications (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	document_path       TEXT NOT NULL,
	number              TEXT NOT NULL,
	jurisdiction        TEXT NOT NULL,
	tribunal            TEXT NOT NULL,
	published_on        DATE,
	edition             TEXT NOT NULL,
	context             TEXT NOT NULL,
	position            INTEGER NOT NULL,
	pattern_id          TEXT NOT NULL,
	mention_count       INTEGER NOT NULL,
	context_score       DOUBLE PRECISION NOT NULL,
	density_score       DOUBLE PRECISION NOT NULL,
	position_score      DOUBLE PRECISION NOT NULL,
	final_score         DOUBLE PRECISION NOT NULL,
	act_type            TEXT NOT NULL DEFAULT '',
	needs_manual_review BOOLEAN NOT NULL,
	extraction_strategy TEXT NOT NULL,
	page_count          INTEGER NOT NULL DEFAULT 0,
	document_char_count INTEGER NOT NULL DEFAULT 0,
	processed_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, document_path, number, jurisdiction)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_publications_identity ON publications(number, jurisdiction);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, targets []model.Identity, minScore float64, documents int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal targets")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, targets, min_score, documents, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(model.RunStatusQueued), targetsJSON, minScore, documents, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		Targets:   targets,
		MinScore:  minScore,
		Documents: documents,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.BatchStats, errMsg string) error {
	var statsJSON []byte
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal stats")
		}
		statsJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), statsJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanRun(row, "postgres")
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows, "postgres")
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveOutcomes appends outcomes with COPY. Outcomes are write-once per run.
func (s *PostgresStore) SaveOutcomes(ctx context.Context, runID string, outcomes []model.ProcessingOutcome) error {
	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		rows[i] = outcomeRow(runID, o)
	}
	return eris.Wrapf(copyOutcomes(ctx, s.pool, rows), "postgres: save outcomes for run %s", runID)
}

// SavePublications upserts publications keyed by run, document and identity,
// so a resumed run can save the same document twice.
func (s *PostgresStore) SavePublications(ctx context.Context, runID string, pubs []model.ScoredPublication) error {
	rows := make([][]any, len(pubs))
	for i, p := range pubs {
		rows[i] = publicationRow(runID, p)
	}
	_, err := upsertPublications(ctx, s.pool, rows)
	return eris.Wrapf(err, "postgres: save publications for run %s", runID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string) ([]model.ProcessingOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(outcomeColumns, ", ")+` FROM outcomes WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []model.ProcessingOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func (s *PostgresStore) ListPublications(ctx context.Context, filter PublicationFilter) ([]model.ScoredPublication, error) {
	query := `SELECT ` + strings.Join(publicationColumns, ", ") + ` FROM publications WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Number != "" {
		query += fmt.Sprintf(` AND number = $%d`, argIdx)
		args = append(args, model.NormalizeNumber(filter.Number))
		argIdx++
	}
	if filter.Jurisdiction != "" {
		query += fmt.Sprintf(` AND jurisdiction = $%d`, argIdx)
		args = append(args, strings.ToUpper(filter.Jurisdiction))
		argIdx++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND final_score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY final_score DESC, processed_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list publications")
	}
	defer rows.Close()

	var out []model.ScoredPublication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan publication")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list publications iterate")
}
