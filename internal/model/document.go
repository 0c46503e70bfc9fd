package model

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

// Markers used when a gazette file name does not carry tribunal or date info.
const (
	UnknownTribunal = "UNKNOWN"
	UnknownEdition  = "UNKNOWN"
)

// SourceDocument is a gazette PDF on disk. It is never mutated after creation;
// cache identity comes from its bytes, not from this struct.
type SourceDocument struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	PageCount int    `json:"page_count,omitempty"`
}

// NewSourceDocument stats path and returns a document with an absolute path.
func NewSourceDocument(path string) (SourceDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return SourceDocument{}, eris.Wrapf(err, "model: resolve path %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return SourceDocument{}, eris.Wrapf(err, "model: stat %s", abs)
	}
	if !info.Mode().IsRegular() {
		return SourceDocument{}, eris.Errorf("model: %s is not a regular file", abs)
	}
	return SourceDocument{Path: abs, Size: info.Size()}, nil
}

// WithPageCount returns a copy of d with the page count set.
func (d SourceDocument) WithPageCount(n int) SourceDocument {
	d.PageCount = n
	return d
}

// DocumentMeta is the tribunal and publication date encoded in a gazette
// file name such as TJSP_2025-11-13_D.pdf.
type DocumentMeta struct {
	Tribunal    string    `json:"tribunal"`
	PublishedOn time.Time `json:"published_on,omitzero"`
	Edition     string    `json:"edition"`
	Known       bool      `json:"known"`
}

var gazetteName = regexp.MustCompile(`([A-Z0-9]+)_(\d{4}-\d{2}-\d{2})_([DE])`)

// ParseDocumentMeta extracts tribunal, date and edition from a file name.
// Unrecognized names yield the Unknown markers. Known is set only when the
// tribunal code is in the registry.
func ParseDocumentMeta(path string) DocumentMeta {
	meta := DocumentMeta{Tribunal: UnknownTribunal, Edition: UnknownEdition}

	m := gazetteName.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return meta
	}
	date, err := time.Parse(time.DateOnly, m[2])
	if err != nil {
		return meta
	}

	meta.Tribunal = m[1]
	meta.PublishedOn = date
	meta.Edition = m[3]
	_, meta.Known = LookupTribunal(m[1])
	return meta
}
