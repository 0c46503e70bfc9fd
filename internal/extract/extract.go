// Package extract turns gazette PDFs into plain text through an ordered
// chain of extraction strategies.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/config"
	"github.com/sells-group/gazette-cli/internal/model"
)

// Strategy names as recorded in results and the cache.
const (
	StrategyPdfToText = "pdftotext"
	StrategyPDFReader = "pdfreader"
	StrategyOCR       = "ocr"
	StrategyMistral   = "ocr_mistral"
	StrategyFailed    = "failed"
)

// ErrNoBackendAvailable means no strategy could run on this machine.
var ErrNoBackendAvailable = eris.New("extract: no extraction backend available")

// ErrInsufficientText marks strategy output that was too short to accept.
var ErrInsufficientText = eris.New("insufficient text")

// IsOCR reports whether a strategy name denotes optical character
// recognition. OCR text always needs manual review.
func IsOCR(strategy string) bool {
	return strategy == StrategyOCR || strings.HasPrefix(strategy, StrategyOCR+"_")
}

// Output is what a strategy produced for one file.
type Output struct {
	Text      string
	PageCount int
	Metadata  map[string]any
}

// Strategy is one way of getting text out of a PDF.
type Strategy interface {
	Name() string
	// Available reports whether the backend can run here. The engine asks
	// once, at construction.
	Available() bool
	Extract(ctx context.Context, path string) (Output, error)
}

// Result is the outcome of extracting one document. Failures are reported
// through Success and Err, never as a separate error return.
type Result struct {
	Text      string
	Strategy  string
	PageCount int
	CharCount int
	Success   bool
	Err       error
	Metadata  map[string]any
	Elapsed   time.Duration
}

// Error returns the failure message, or "" on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Attempt records why one strategy was not accepted.
type Attempt struct {
	Strategy string
	Err      error
}

// ExtractionError is returned in Result.Err when every strategy failed.
type ExtractionError struct {
	Path     string
	Attempts []Attempt
}

func (e *ExtractionError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return fmt.Sprintf("extract: all strategies failed for %s: %s", e.Path, strings.Join(parts, "; "))
}

// Engine runs the available strategies in order and keeps the first output
// with enough text. An Engine holds no per-document state.
type Engine struct {
	strategies []Strategy
	minChars   int
	maxBytes   int64
}

// New builds an engine from configuration using the real binaries.
func New(cfg config.ExtractConfig, mistral config.MistralConfig) (*Engine, error) {
	return NewWithStrategies(cfg, DefaultStrategies(cfg, mistral, ExecRunner())...)
}

// DefaultStrategies returns the configured chain: pdftotext, the pure-Go
// reader, then OCR when enabled.
func DefaultStrategies(cfg config.ExtractConfig, mistral config.MistralConfig, runner Runner) []Strategy {
	strategies := []Strategy{
		NewPdfToText(cfg.PdfToTextPath, runner),
		NewPDFReader(),
	}
	if cfg.EnableOCR {
		switch cfg.OCRProvider {
		case "mistral":
			strategies = append(strategies, NewMistralOCR(mistral))
		default:
			strategies = append(strategies, NewTesseractOCR(cfg, runner))
		}
	}
	return strategies
}

// NewWithStrategies builds an engine from an explicit chain, keeping only
// the strategies that report themselves available.
func NewWithStrategies(cfg config.ExtractConfig, strategies ...Strategy) (*Engine, error) {
	var available []Strategy
	for _, s := range strategies {
		if s.Available() {
			available = append(available, s)
			continue
		}
		zap.L().Warn("extract: backend unavailable", zap.String("strategy", s.Name()))
	}
	if len(available) == 0 {
		return nil, ErrNoBackendAvailable
	}

	minChars := cfg.MinChars
	if minChars <= 0 {
		minChars = 50
	}
	return &Engine{
		strategies: available,
		minChars:   minChars,
		maxBytes:   int64(cfg.MaxFileSizeMB) << 20,
	}, nil
}

// Strategies returns the names of the strategies the engine will try.
func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract validates the document and runs the chain.
func (e *Engine) Extract(ctx context.Context, doc model.SourceDocument) Result {
	start := time.Now()
	res := e.extract(ctx, doc.Path)
	res.Elapsed = time.Since(start)
	return res
}

func (e *Engine) extract(ctx context.Context, path string) Result {
	failed := func(err error) Result {
		return Result{Strategy: StrategyFailed, Err: err}
	}

	if err := Validate(path, e.maxBytes); err != nil {
		return failed(err)
	}

	extErr := &ExtractionError{Path: path}
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return failed(eris.Wrap(err, "extract: cancelled"))
		}

		out, err := runStrategy(ctx, s, path)
		if err == nil {
			out.Text = Normalize(out.Text)
			if n := utf8.RuneCountInString(out.Text); n < e.minChars {
				err = eris.Wrapf(ErrInsufficientText, "%d of %d characters", n, e.minChars)
			}
		}
		if err != nil {
			zap.L().Warn("extract: strategy failed",
				zap.String("path", path),
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			extErr.Attempts = append(extErr.Attempts, Attempt{Strategy: s.Name(), Err: err})
			continue
		}

		return Result{
			Text:      out.Text,
			Strategy:  s.Name(),
			PageCount: out.PageCount,
			CharCount: utf8.RuneCountInString(out.Text),
			Success:   true,
			Metadata:  out.Metadata,
		}
	}
	return failed(extErr)
}

// runStrategy calls s.Extract, turning a panic inside a backend into an
// error.
func runStrategy(ctx context.Context, s Strategy, path string) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("extract: %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Extract(ctx, path)
}
