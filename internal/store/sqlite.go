package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gazette-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: connect")
	}
	return &SQLiteStore{db: db}, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	targets    TEXT NOT NULL,
	min_score  REAL NOT NULL,
	documents  INTEGER NOT NULL DEFAULT 0,
	stats      TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	document_path TEXT NOT NULL,
	success       INTEGER NOT NULL,
	match_count   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	elapsed_ms    INTEGER NOT NULL DEFAULT 0,
	strategy      TEXT NOT NULL DEFAULT '',
	cache_hit     INTEGER NOT NULL DEFAULT 0
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
	context_score       REAL NOT NULL,
	density_score       REAL NOT NULL,
	position_score      REAL NOT NULL,
	final_score         REAL NOT NULL,
	act_type            TEXT NOT NULL DEFAULT '',
	needs_manual_review INTEGER NOT NULL,
	extraction_strategy TEXT NOT NULL,
	page_count          INTEGER NOT NULL DEFAULT 0,
	document_char_count INTEGER NOT NULL DEFAULT 0,
	processed_at        DATETIME NOT NULL,
	PRIMARY KEY (run_id, document_path, number, jurisdiction)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_publications_identity ON publications(number, jurisdiction);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, targets []model.Identity, minScore float64, documents int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal targets")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, targets, min_score, documents, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(model.RunStatusQueued), string(targetsJSON), minScore, documents, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.BatchStats, errMsg string) error {
	var statsJSON any
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal stats")
		}
		statsJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), statsJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row, "sqlite")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows, "sqlite")
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveOutcomes(ctx context.Context, runID string, outcomes []model.ProcessingOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	return s.insertAll(ctx, "outcomes", outcomeColumns, "", func(add func([]any) error) error {
		for _, o := range outcomes {
			if err := add(outcomeRow(runID, o)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SavePublications(ctx context.Context, runID string, pubs []model.ScoredPublication) error {
	if len(pubs) == 0 {
		return nil
	}
	conflict := publicationConflict(func(c string) string { return c })
	return s.insertAll(ctx, "publications", publicationColumns, conflict, func(add func([]any) error) error {
		for _, p := range pubs {
			if err := add(publicationRow(runID, p)); err != nil {
				return err
			}
		}
		return nil
	})
}

// insertAll runs one prepared INSERT per row inside a single transaction.
func (s *SQLiteStore) insertAll(ctx context.Context, table string, columns []string, suffix string, fill func(add func([]any) error) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s tx", table)
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+table+` (`+strings.Join(columns, ", ")+`) VALUES (`+placeholders+`)`+suffix,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s insert", table)
	}
	defer stmt.Close() //nolint:errcheck

	err = fill(func(args []any) error {
		_, err := stmt.ExecContext(ctx, args...)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert %s", table)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]model.ProcessingOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(outcomeColumns, ", ")+` FROM outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProcessingOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

func (s *SQLiteStore) ListPublications(ctx context.Context, filter PublicationFilter) ([]model.ScoredPublication, error) {
	query := `SELECT ` + strings.Join(publicationColumns, ", ") + ` FROM publications WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Number != "" {
		query += ` AND number = ?`
		args = append(args, model.NormalizeNumber(filter.Number))
	}
	if filter.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, strings.ToUpper(filter.Jurisdiction))
	}
	if filter.MinScore > 0 {
		query += ` AND final_score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY final_score DESC, processed_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list publications")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScoredPublication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan publication")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list publications iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
