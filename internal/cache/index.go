package cache

import (
	"context"
	"time"
)

// timeLayout is RFC 3339 with a fixed-width fraction so stored timestamps
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one index row. The text itself lives in TextFile under the
// cache's texts directory.
type Record struct {
	Hash       string         `json:"hash"`
	Path       string         `json:"path"`
	Strategy   string         `json:"strategy"`
	CachedAt   time.Time      `json:"cached_at"`
	FileSize   int64          `json:"file_size"`
	PageCount  int            `json:"page_count"`
	CharCount  int            `json:"char_count"`
	TextFile   string         `json:"text_file"`
	Compressed bool           `json:"compressed"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Index maps content hashes to cache records.
type Index interface {
	Get(ctx context.Context, hash string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, hash string) (bool, error)
	// OlderThan returns the hashes of records cached before cutoff.
	OlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]Record, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
