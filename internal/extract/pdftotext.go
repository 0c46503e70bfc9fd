package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts layout-preserving text with poppler's pdftotext.
type PdfToText struct {
	binPath string
	runner  Runner
}

// NewPdfToText creates a PdfToText strategy. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string, runner Runner) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, runner: runner}
}

// Name implements Strategy.
func (p *PdfToText) Name() string { return StrategyPdfToText }

// Available implements Strategy.
func (p *PdfToText) Available() bool {
	_, err := p.runner.LookPath(p.binPath)
	return err == nil
}

// Extract runs pdftotext -layout. Pages come back separated by form feeds.
func (p *PdfToText) Extract(ctx context.Context, path string) (Output, error) {
	stdout, stderr, err := p.runner.Run(ctx, p.binPath, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return Output{}, eris.Wrapf(err, "extract: pdftotext failed for %s: %s", path, truncate(string(stderr), 512))
	}

	pages := strings.Split(string(stdout), "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return Output{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: len(pages),
	}, nil
}
