package extract

import (
	"context"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PDFReader extracts plain text in-process with github.com/ledongthuc/pdf.
// It handles simple and slightly malformed PDFs that trip pdftotext.
type PDFReader struct{}

// NewPDFReader creates a PDFReader strategy.
func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

// Name implements Strategy.
func (r *PDFReader) Name() string { return StrategyPDFReader }

// Available implements Strategy. The reader is compiled in.
func (r *PDFReader) Available() bool { return true }

// Extract reads every page's plain text. Pages that fail to decode are
// skipped.
func (r *PDFReader) Extract(ctx context.Context, path string) (Output, error) {
	f, err := os.Open(path)
	if err != nil {
		return Output{}, eris.Wrapf(err, "extract: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return Output{}, eris.Wrapf(err, "extract: stat %s", path)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return Output{}, eris.Wrapf(err, "extract: parse %s", path)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return Output{}, eris.Wrap(err, "extract: pdfreader cancelled")
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			zap.L().Debug("extract: skipping unreadable page",
				zap.String("path", path),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		pages = append(pages, text)
	}

	return Output{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: total,
	}, nil
}
