package extract

import (
	"bytes"
	"io"
	"os"

	"github.com/h2non/filetype"
	"github.com/rotisserie/eris"
)

// ErrInvalidDocument is wrapped by every Validate failure.
var ErrInvalidDocument = eris.New("invalid document")

// headerSize is how many leading bytes filetype needs to identify a file.
const headerSize = 262

var pdfMagic = []byte("%PDF-")

// Validate checks that path is a regular, non-empty file no larger than
// maxBytes whose leading bytes carry the PDF signature. The file name is not
// consulted.
func Validate(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(ErrInvalidDocument, "extract: stat %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		return eris.Wrapf(ErrInvalidDocument, "extract: %s is not a regular file", path)
	}
	if info.Size() == 0 {
		return eris.Wrapf(ErrInvalidDocument, "extract: %s is empty", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return eris.Wrapf(ErrInvalidDocument, "extract: %s is %d bytes, limit is %d", path, info.Size(), maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(ErrInvalidDocument, "extract: open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return eris.Wrapf(ErrInvalidDocument, "extract: read header of %s: %v", path, err)
	}
	head = head[:n]
	if !filetype.Is(head, "pdf") {
		if kind, _ := filetype.Match(head); kind != filetype.Unknown {
			return eris.Wrapf(ErrInvalidDocument, "extract: %s is %s, not a PDF", path, kind.MIME.Value)
		}
		return eris.Wrapf(ErrInvalidDocument, "extract: %s does not have a PDF header", path)
	}
	// filetype only looks at the first four bytes.
	if !bytes.HasPrefix(head, pdfMagic) {
		return eris.Wrapf(ErrInvalidDocument, "extract: %s has no PDF version marker", path)
	}
	return nil
}
