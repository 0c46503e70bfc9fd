package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/gazette-cli/internal/config"
	"github.com/sells-group/gazette-cli/internal/resilience"
)

const (
	defaultMistralBaseURL = "https://api.mistral.ai/v1"
	defaultMistralModel   = "pixtral-large-latest"
)

// MistralOCR sends the whole PDF to the Mistral OCR API. One instance is
// shared by every worker so the rate limit and circuit breaker apply to the
// whole batch.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
}

// NewMistralOCR creates a MistralOCR strategy.
func NewMistralOCR(cfg config.MistralConfig) *MistralOCR {
	model := cfg.Model
	if model == "" {
		model = defaultMistralModel
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultMistralBaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig(StrategyMistral)
	breakerCfg.ShouldTrip = resilience.IsTransient

	return &MistralOCR{
		apiKey:   cfg.Key,
		model:    model,
		endpoint: base + "/ocr",
		client:   &http.Client{Timeout: 5 * time.Minute},
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  resilience.NewCircuitBreaker(breakerCfg),
		retry:    resilience.DefaultRetryConfig().WithAttempts(cfg.MaxAttempts),
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// Name implements Strategy.
func (m *MistralOCR) Name() string { return StrategyMistral }

// Available implements Strategy. An API key is all that is needed.
func (m *MistralOCR) Available() bool { return m.apiKey != "" }

// Extract uploads the PDF as a data URL and joins the returned pages.
func (m *MistralOCR) Extract(ctx context.Context, path string) (Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Output{}, eris.Wrapf(err, "extract: read PDF %s", path)
	}

	body, err := json.Marshal(mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return Output{}, eris.Wrap(err, "extract: marshal mistral request")
	}

	retry := m.retry
	retry.OnRetry = resilience.RetryLogger(StrategyMistral, path)

	resp, err := resilience.ExecuteVal(ctx, m.breaker, func(ctx context.Context) (*mistralOCRResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*mistralOCRResponse, error) {
			if err := m.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "extract: mistral rate limit wait")
			}
			return m.call(ctx, body)
		})
	})
	if err != nil {
		return Output{}, err
	}

	pages := make([]string, len(resp.Pages))
	for i, p := range resp.Pages {
		pages[i] = p.Markdown
	}
	return Output{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: len(resp.Pages),
		Metadata: map[string]any{
			"ocr_provider": "mistral",
			"ocr_model":    m.model,
			"warning":      "OCR text requires manual review",
		},
	}, nil
}

func (m *MistralOCR) call(ctx context.Context, body []byte) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "extract: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "extract: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "extract: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("extract: mistral", resp.StatusCode, respBody)
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "extract: unmarshal mistral response")
	}
	return &out, nil
}
