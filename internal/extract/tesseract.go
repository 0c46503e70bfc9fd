package extract

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/config"
)

// TesseractOCR rasterizes pages with pdftoppm and recognizes them with
// tesseract. It is the slowest strategy and only runs when OCR is enabled.
type TesseractOCR struct {
	pdftoppm  string
	tesseract string
	lang      string
	dpi       int
	maxPages  int
	runner    Runner
}

// NewTesseractOCR creates a TesseractOCR strategy from extract settings.
func NewTesseractOCR(cfg config.ExtractConfig, runner Runner) *TesseractOCR {
	t := &TesseractOCR{
		pdftoppm:  cfg.PdfToPPMPath,
		tesseract: cfg.TesseractPath,
		lang:      cfg.OCRLanguage,
		dpi:       cfg.OCRDPI,
		maxPages:  cfg.OCRMaxPages,
		runner:    runner,
	}
	if t.pdftoppm == "" {
		t.pdftoppm = "pdftoppm"
	}
	if t.tesseract == "" {
		t.tesseract = "tesseract"
	}
	if t.lang == "" {
		t.lang = "por"
	}
	if t.dpi <= 0 {
		t.dpi = 300
	}
	if t.maxPages <= 0 {
		t.maxPages = 10
	}
	return t
}

// Name implements Strategy.
func (t *TesseractOCR) Name() string { return StrategyOCR }

// Available implements Strategy. Both binaries must be on PATH.
func (t *TesseractOCR) Available() bool {
	if _, err := t.runner.LookPath(t.pdftoppm); err != nil {
		return false
	}
	_, err := t.runner.LookPath(t.tesseract)
	return err == nil
}

// Extract renders at most maxPages pages into a temporary directory and
// recognizes each one. The directory is removed before returning.
func (t *TesseractOCR) Extract(ctx context.Context, path string) (Output, error) {
	dir, err := os.MkdirTemp("", "gazette-ocr-*")
	if err != nil {
		return Output{}, eris.Wrap(err, "extract: create OCR work dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	prefix := filepath.Join(dir, "page")
	args := []string{
		"-r", strconv.Itoa(t.dpi),
		"-gray", "-png",
		"-f", "1", "-l", strconv.Itoa(t.maxPages),
		path, prefix,
	}
	if _, stderr, err := t.runner.Run(ctx, t.pdftoppm, args...); err != nil {
		return Output{}, eris.Wrapf(err, "extract: pdftoppm failed for %s: %s", path, truncate(string(stderr), 512))
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return Output{}, eris.Wrap(err, "extract: list rendered pages")
	}
	if len(images) == 0 {
		return Output{}, eris.Errorf("extract: pdftoppm rendered no pages for %s", path)
	}
	// pdftoppm zero-pads page numbers, so names sort in page order.
	sort.Strings(images)

	pages := make([]string, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return Output{}, eris.Wrap(err, "extract: OCR cancelled")
		}
		stdout, stderr, err := t.runner.Run(ctx, t.tesseract, img, "stdout", "-l", t.lang)
		if err != nil {
			zap.L().Warn("extract: tesseract failed on page",
				zap.String("path", path),
				zap.String("image", filepath.Base(img)),
				zap.String("stderr", truncate(string(stderr), 512)),
				zap.Error(err),
			)
			continue
		}
		if text := strings.TrimSpace(string(stdout)); text != "" {
			pages = append(pages, text)
		}
	}

	meta := map[string]any{
		"ocr_lang":  t.lang,
		"ocr_pages": len(images),
		"warning":   "OCR text requires manual review",
	}
	if len(images) >= t.maxPages {
		meta["ocr_truncated"] = true
	}
	return Output{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: len(images),
		Metadata:  meta,
	}, nil
}
