package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// JSONIndex keeps the whole index in one JSON file. Every operation reloads
// the file and writes it back through a temp file and rename. Writers in one
// process are serialized; separate processes can still lose each other's
// updates, which is why SQLiteIndex is the default.
type JSONIndex struct {
	path string
	mu   sync.Mutex
}

// NewJSONIndex returns an index backed by the file at path. A missing file
// is an empty index.
func NewJSONIndex(path string) *JSONIndex {
	return &JSONIndex{path: path}
}

func (x *JSONIndex) load() map[string]Record {
	data, err := os.ReadFile(x.path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Error("cache: read json index", zap.String("path", x.path), zap.Error(err))
		}
		return map[string]Record{}
	}
	idx := map[string]Record{}
	if err := json.Unmarshal(data, &idx); err != nil {
		zap.L().Error("cache: corrupt json index, starting empty", zap.String("path", x.path), zap.Error(err))
		return map[string]Record{}
	}
	return idx
}

func (x *JSONIndex) save(idx map[string]Record) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: marshal json index")
	}
	return writeFileAtomic(x.path, data)
}

func (x *JSONIndex) Get(_ context.Context, hash string) (Record, bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rec, ok := x.load()[hash]
	return rec, ok, nil
}

func (x *JSONIndex) Put(_ context.Context, rec Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	idx := x.load()
	rec.CachedAt = rec.CachedAt.UTC()
	idx[rec.Hash] = rec
	return x.save(idx)
}

func (x *JSONIndex) Delete(_ context.Context, hash string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	idx := x.load()
	if _, ok := idx[hash]; !ok {
		return false, nil
	}
	delete(idx, hash)
	return true, x.save(idx)
}

func (x *JSONIndex) OlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var hashes []string
	for h, rec := range x.load() {
		if rec.CachedAt.Before(cutoff) {
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (x *JSONIndex) List(_ context.Context) ([]Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	idx := x.load()
	recs := make([]Record, 0, len(idx))
	for _, rec := range idx {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CachedAt.After(recs[j].CachedAt) })
	return recs, nil
}

func (x *JSONIndex) Len(_ context.Context) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.load()), nil
}

func (x *JSONIndex) Close() error { return nil }

// writeFileAtomic writes data to a temp file in path's directory and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "cache: create temp for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "cache: write temp for %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "cache: close temp for %s", path)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "cache: rename into %s", path)
}
