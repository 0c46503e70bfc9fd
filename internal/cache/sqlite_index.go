package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteIndex stores the cache index in SQLite. WAL mode and a busy timeout
// let several workers and CLI processes share one index.
type SQLiteIndex struct {
	db *sql.DB
}

const sqliteIndexMigration = `
CREATE TABLE IF NOT EXISTS cache_entries (
	hash       TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	cached_at  TEXT NOT NULL,
	file_size  INTEGER NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	char_count INTEGER NOT NULL DEFAULT 0,
	text_file  TEXT NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	metadata   TEXT
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_cached_at ON cache_entries(cached_at);
`

// sqlitePragmas are applied by the driver to every pooled connection.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// NewSQLiteIndex opens (creating if needed) the index database at path.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?"+sqlitePragmas)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open sqlite index")
	}
	if _, err := db.Exec(sqliteIndexMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "cache: migrate sqlite index")
	}
	return &SQLiteIndex{db: db}, nil
}

const recordColumns = `hash, path, strategy, cached_at, file_size, page_count, char_count, text_file, compressed, metadata`

func (x *SQLiteIndex) Get(ctx context.Context, hash string) (Record, bool, error) {
	row := x.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM cache_entries WHERE hash = ?`, hash)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, eris.Wrapf(err, "cache: get index entry %s", hash)
	}
	return rec, true, nil
}

func (x *SQLiteIndex) Put(ctx context.Context, rec Record) error {
	var meta any
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return eris.Wrap(err, "cache: marshal metadata")
		}
		meta = string(b)
	}

	_, err := x.db.ExecContext(ctx,
		`INSERT INTO cache_entries (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (hash) DO UPDATE SET
			path = excluded.path, strategy = excluded.strategy, cached_at = excluded.cached_at,
			file_size = excluded.file_size, page_count = excluded.page_count, char_count = excluded.char_count,
			text_file = excluded.text_file, compressed = excluded.compressed, metadata = excluded.metadata`,
		rec.Hash, rec.Path, rec.Strategy, rec.CachedAt.UTC().Format(timeLayout),
		rec.FileSize, rec.PageCount, rec.CharCount, rec.TextFile, rec.Compressed, meta,
	)
	return eris.Wrapf(err, "cache: put index entry %s", rec.Hash)
}

func (x *SQLiteIndex) Delete(ctx context.Context, hash string) (bool, error) {
	res, err := x.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE hash = ?`, hash)
	if err != nil {
		return false, eris.Wrapf(err, "cache: delete index entry %s", hash)
	}
	n, err := res.RowsAffected()
	return n > 0, eris.Wrap(err, "cache: rows affected")
}

func (x *SQLiteIndex) OlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT hash FROM cache_entries WHERE cached_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "cache: query old entries")
	}
	defer rows.Close() //nolint:errcheck

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "cache: scan hash")
		}
		hashes = append(hashes, h)
	}
	return hashes, eris.Wrap(rows.Err(), "cache: old entries iterate")
}

func (x *SQLiteIndex) List(ctx context.Context) ([]Record, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM cache_entries ORDER BY cached_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list index")
	}
	defer rows.Close() //nolint:errcheck

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "cache: scan index entry")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "cache: list index iterate")
}

func (x *SQLiteIndex) Len(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, eris.Wrap(err, "cache: count index")
}

func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (Record, error) {
	var (
		rec      Record
		cachedAt string
		meta     sql.NullString
	)
	err := row.Scan(&rec.Hash, &rec.Path, &rec.Strategy, &cachedAt, &rec.FileSize,
		&rec.PageCount, &rec.CharCount, &rec.TextFile, &rec.Compressed, &meta)
	if err != nil {
		return Record{}, err
	}
	if rec.CachedAt, err = time.Parse(time.RFC3339Nano, cachedAt); err != nil {
		return Record{}, eris.Wrapf(err, "cache: parse cached_at %q", cachedAt)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return Record{}, eris.Wrap(err, "cache: unmarshal metadata")
		}
	}
	return rec, nil
}
