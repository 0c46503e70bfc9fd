// Package cache stores extracted gazette text keyed by the SHA-256 of the
// PDF bytes, so a re-downloaded or renamed file is still a hit and a
// modified file is always a miss.
package cache

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/config"
	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
)

// Index backends selectable by config.
const (
	IndexSQLite = "sqlite"
	IndexJSON   = "json"
)

// Entry is a cached extraction.
type Entry struct {
	ContentHash string         `json:"content_hash"`
	Path        string         `json:"path"`
	Text        string         `json:"text"`
	Strategy    string         `json:"strategy"`
	CachedAt    time.Time      `json:"cached_at"`
	FileSize    int64          `json:"file_size"`
	PageCount   int            `json:"page_count"`
	CharCount   int            `json:"char_count"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes cache contents and this process's lookup counters.
type Stats struct {
	Entries       int     `json:"entries"`
	SizeBytes     int64   `json:"size_bytes"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Invalidations int64   `json:"invalidations"`
	HitRate       float64 `json:"hit_rate"`
}

// Cache is safe for concurrent use by batch workers.
type Cache struct {
	root     string
	textsDir string
	metaDir  string
	index    Index
	maxAge   time.Duration
	compress bool
	metrics  *monitoring.Metrics
	now      func() time.Time

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// Open creates the cache directory layout under cfg.Dir and opens the
// configured index. metrics may be nil.
func Open(cfg config.CacheConfig, metrics *monitoring.Metrics) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, eris.New("cache: directory is required")
	}
	c := &Cache{
		root:     cfg.Dir,
		textsDir: filepath.Join(cfg.Dir, "texts"),
		metaDir:  filepath.Join(cfg.Dir, "metadata"),
		maxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress: cfg.Compress,
		metrics:  metrics,
		now:      time.Now,
	}
	for _, dir := range []string{c.textsDir, c.metaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "cache: create %s", dir)
		}
	}

	switch cfg.Index {
	case IndexSQLite, "":
		idx, err := NewSQLiteIndex(filepath.Join(cfg.Dir, "index.db"))
		if err != nil {
			return nil, err
		}
		c.index = idx
	case IndexJSON:
		c.index = NewJSONIndex(filepath.Join(cfg.Dir, "index.json"))
	default:
		return nil, eris.Errorf("cache: unknown index %q", cfg.Index)
	}

	zap.L().Debug("cache: opened",
		zap.String("dir", cfg.Dir),
		zap.String("index", cfg.Index),
		zap.Bool("compress", cfg.Compress),
		zap.Int("max_age_days", cfg.MaxAgeDays),
	)
	return c, nil
}

// Close releases the index.
func (c *Cache) Close() error {
	return c.index.Close()
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.root }

// Get returns the cached text for doc's current bytes. Every failure is
// reported as a miss.
func (c *Cache) Get(ctx context.Context, doc model.SourceDocument) (*Entry, bool) {
	log := zap.L().With(zap.String("path", doc.Path))

	hash, err := HashFile(doc.Path)
	if err != nil {
		log.Warn("cache: hash failed", zap.Error(err))
		return c.miss()
	}

	rec, ok, err := c.index.Get(ctx, hash)
	if err != nil {
		log.Error("cache: index lookup failed", zap.Error(err))
		return c.miss()
	}
	if !ok {
		log.Debug("cache: miss", zap.String("hash", hash))
		return c.miss()
	}

	if c.maxAge > 0 && c.now().Sub(rec.CachedAt) > c.maxAge {
		log.Debug("cache: entry expired", zap.String("hash", hash), zap.Time("cached_at", rec.CachedAt))
		if c.remove(ctx, rec.Hash, rec.TextFile) {
			c.invalidations.Add(1)
			c.metrics.RecordCacheInvalidation("expired", 1)
		}
		return c.miss()
	}

	text, err := c.readText(rec)
	if os.IsNotExist(err) {
		log.Warn("cache: text file missing, dropping index entry", zap.String("hash", hash))
		if c.remove(ctx, rec.Hash, rec.TextFile) {
			c.metrics.RecordCacheInvalidation("dangling", 1)
		}
		return c.miss()
	}
	if err != nil {
		log.Error("cache: read text failed", zap.String("hash", hash), zap.Error(err))
		return c.miss()
	}

	c.hits.Add(1)
	c.metrics.RecordCacheLookup(true)
	log.Debug("cache: hit", zap.String("hash", hash), zap.String("strategy", rec.Strategy))
	return &Entry{
		ContentHash: rec.Hash,
		Path:        doc.Path,
		Text:        text,
		Strategy:    rec.Strategy,
		CachedAt:    rec.CachedAt,
		FileSize:    rec.FileSize,
		PageCount:   rec.PageCount,
		CharCount:   rec.CharCount,
		Metadata:    rec.Metadata,
	}, true
}

func (c *Cache) miss() (*Entry, bool) {
	c.misses.Add(1)
	c.metrics.RecordCacheLookup(false)
	return nil, false
}

func (c *Cache) readText(rec Record) (string, error) {
	f, err := os.Open(filepath.Join(c.textsDir, rec.TextFile))
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if rec.Compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", eris.Wrap(err, "cache: open gzip text")
		}
		defer gz.Close() //nolint:errcheck
		r = gz
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, r); err != nil {
		return "", eris.Wrap(err, "cache: read text")
	}
	return sb.String(), nil
}

// Save stores text for doc's current bytes, replacing any previous entry.
func (c *Cache) Save(ctx context.Context, doc model.SourceDocument, text, strategy string, pageCount int, metadata map[string]any) error {
	err := c.save(ctx, doc, text, strategy, pageCount, metadata)
	if err != nil {
		c.metrics.RecordCacheSaveError()
		zap.L().Error("cache: save failed", zap.String("path", doc.Path), zap.Error(err))
	}
	return err
}

func (c *Cache) save(ctx context.Context, doc model.SourceDocument, text, strategy string, pageCount int, metadata map[string]any) error {
	hash, err := HashFile(doc.Path)
	if err != nil {
		return err
	}
	info, err := os.Stat(doc.Path)
	if err != nil {
		return eris.Wrapf(err, "cache: stat %s", doc.Path)
	}

	prev, hadPrev, err := c.index.Get(ctx, hash)
	if err != nil {
		return err
	}

	textFile := hash + ".txt"
	if c.compress {
		textFile += ".gz"
	}
	textPath := filepath.Join(c.textsDir, textFile)
	if err := c.writeText(textPath, text); err != nil {
		return err
	}

	rec := Record{
		Hash:       hash,
		Path:       doc.Path,
		Strategy:   strategy,
		CachedAt:   c.now().UTC(),
		FileSize:   info.Size(),
		PageCount:  pageCount,
		CharCount:  utf8.RuneCountInString(text),
		TextFile:   textFile,
		Compressed: c.compress,
		Metadata:   metadata,
	}
	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		os.Remove(textPath) //nolint:errcheck
		return eris.Wrap(err, "cache: marshal metadata")
	}
	metaPath := filepath.Join(c.metaDir, hash+".json")
	if err := writeFileAtomic(metaPath, meta); err != nil {
		os.Remove(textPath) //nolint:errcheck
		return err
	}
	if err := c.index.Put(ctx, rec); err != nil {
		// Files without an index entry are never read back.
		os.Remove(textPath) //nolint:errcheck
		os.Remove(metaPath) //nolint:errcheck
		return err
	}
	if hadPrev && prev.TextFile != "" && prev.TextFile != textFile {
		os.Remove(filepath.Join(c.textsDir, prev.TextFile)) //nolint:errcheck
	}

	zap.L().Debug("cache: saved",
		zap.String("path", doc.Path),
		zap.String("hash", hash),
		zap.String("strategy", strategy),
		zap.Int("chars", rec.CharCount),
	)
	return nil
}

func (c *Cache) writeText(path, text string) error {
	tmp, err := os.CreateTemp(c.textsDir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "cache: create temp text")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	var w io.Writer = tmp
	var gz *gzip.Writer
	if c.compress {
		gz = gzip.NewWriter(tmp)
		w = gz
	}
	if _, err := io.WriteString(w, text); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "cache: write text")
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "cache: flush gzip text")
		}
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "cache: close text")
	}
	return eris.Wrap(os.Rename(tmp.Name(), path), "cache: rename text")
}

// Invalidate removes the entry for doc's current bytes. It reports whether
// an entry existed.
func (c *Cache) Invalidate(ctx context.Context, doc model.SourceDocument) bool {
	hash, err := HashFile(doc.Path)
	if err != nil {
		zap.L().Warn("cache: hash failed", zap.String("path", doc.Path), zap.Error(err))
		return false
	}
	rec, ok, err := c.index.Get(ctx, hash)
	if err != nil {
		zap.L().Error("cache: index lookup failed", zap.String("hash", hash), zap.Error(err))
		return false
	}
	if !ok || !c.remove(ctx, hash, rec.TextFile) {
		return false
	}
	c.invalidations.Add(1)
	c.metrics.RecordCacheInvalidation("manual", 1)
	return true
}

// InvalidateOlderThan removes entries cached more than age ago and returns
// how many were removed.
func (c *Cache) InvalidateOlderThan(ctx context.Context, age time.Duration) int {
	hashes, err := c.index.OlderThan(ctx, c.now().Add(-age))
	if err != nil {
		zap.L().Error("cache: list old entries failed", zap.Error(err))
		return 0
	}
	n := c.removeAll(ctx, hashes)
	c.invalidations.Add(int64(n))
	c.metrics.RecordCacheInvalidation("age", n)
	if n > 0 {
		zap.L().Info("cache: invalidated old entries", zap.Int("count", n), zap.Duration("older_than", age))
	}
	return n
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	recs, err := c.index.List(ctx)
	if err != nil {
		return 0, err
	}
	hashes := make([]string, len(recs))
	for i, r := range recs {
		hashes[i] = r.Hash
	}
	n := c.removeAll(ctx, hashes)
	c.invalidations.Add(int64(n))
	c.metrics.RecordCacheInvalidation("manual", n)
	return n, nil
}

// List returns every index record, newest first.
func (c *Cache) List(ctx context.Context) ([]Record, error) {
	return c.index.List(ctx)
}

// Stats reports entry count, on-disk text size and lookup counters.
func (c *Cache) Stats(ctx context.Context) Stats {
	s := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}

	n, err := c.index.Len(ctx)
	if err != nil {
		zap.L().Error("cache: count entries failed", zap.Error(err))
	}
	s.Entries = n

	files, err := os.ReadDir(c.textsDir)
	if err != nil {
		zap.L().Error("cache: read texts dir failed", zap.Error(err))
		return s
	}
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		if info, err := f.Info(); err == nil {
			s.SizeBytes += info.Size()
		}
	}
	return s
}

func (c *Cache) removeAll(ctx context.Context, hashes []string) int {
	n := 0
	for _, h := range hashes {
		rec, ok, err := c.index.Get(ctx, h)
		if err != nil || !ok {
			continue
		}
		if c.remove(ctx, h, rec.TextFile) {
			n++
		}
	}
	return n
}

// remove drops the index entry first, then the files. It reports whether the
// index entry existed.
func (c *Cache) remove(ctx context.Context, hash, textFile string) bool {
	existed, err := c.index.Delete(ctx, hash)
	if err != nil {
		zap.L().Error("cache: delete index entry failed", zap.String("hash", hash), zap.Error(err))
		return false
	}
	for _, p := range []string{filepath.Join(c.textsDir, textFile), filepath.Join(c.metaDir, hash+".json")} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("cache: remove file failed", zap.String("file", p), zap.Error(err))
		}
	}
	return existed
}
