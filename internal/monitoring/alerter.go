package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate      AlertType = "run_failure_rate"
	AlertDocumentFailureRate AlertType = "document_failure_rate"
	AlertStalledRuns         AlertType = "stalled_runs"
)

// Minimum sample sizes before a rate alert fires.
const (
	minFinishedRuns   = 5
	minDocumentsTotal = 20
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.RunFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Scan run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.DocumentsTotal >= minDocumentsTotal && snap.DocumentFailRate > a.cfg.DocumentFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDocumentFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Document failure rate %.1f%% exceeds threshold %.1f%% (%d of %d documents in last %dh)",
				snap.DocumentFailRate*100, a.cfg.DocumentFailureThreshold*100,
				snap.DocumentsFailed, snap.DocumentsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.DocumentFailRate,
				"threshold":    a.cfg.DocumentFailureThreshold,
				"failed":       snap.DocumentsFailed,
				"total":        snap.DocumentsTotal,
			},
			Timestamp: now,
		})
	}

	if snap.RunsStalled > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStalledRuns,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d scan run(s) have not progressed in over %d minutes",
				snap.RunsStalled, a.cfg.StalledAfterMinutes,
			),
			Details: map[string]any{
				"stalled": snap.RunsStalled,
				"active":  snap.RunsActive,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
