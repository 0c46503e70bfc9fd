package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// pgPool is the subset of *pgxpool.Pool the Postgres store uses. pgxmock
// pools satisfy it in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// publicationsStage is the per-transaction staging table for publication
// upserts. COPY cannot resolve conflicts, so rows land here first.
const publicationsStage = "publications_stage"

// copyOutcomes appends outcome rows with COPY.
func copyOutcomes(ctx context.Context, pool pgPool, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := pool.CopyFrom(ctx, pgx.Identifier{"outcomes"}, outcomeColumns, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrap(err, "postgres: COPY INTO outcomes")
	}
	return nil
}

// upsertPublications COPYs rows into a staging table dropped on commit, then
// merges them into publications on the run/document/identity key.
func upsertPublications(ctx context.Context, pool pgPool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert publications: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := pgx.Identifier{publicationsStage}.Sanitize()
	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE `+stage+` (LIKE publications INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert publications: create staging table")
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{publicationsStage}, publicationColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert publications: COPY into staging table")
	}

	cols := quoteColumns(publicationColumns)
	tag, err := tx.Exec(ctx, `INSERT INTO publications (`+cols+`) SELECT `+cols+` FROM `+stage+publicationConflict(quoteIdent))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert publications: merge")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert publications: commit tx")
	}
	return tag.RowsAffected(), nil
}

func quoteIdent(name string) string { return pgx.Identifier{name}.Sanitize() }

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
