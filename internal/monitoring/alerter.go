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

	"github.com/sells-group/marketscope/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertSyncFailure    AlertType = "sync_failure"
	AlertStaleResults   AlertType = "stale_results"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.RunFailRate > a.cfg.FailureRateThreshold {
		finished := snap.RunsComplete + snap.RunsFailed
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Analysis run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
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

	if snap.SyncsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d source sync(s) failed in last %dh",
				snap.SyncsFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_count": snap.SyncsFailed,
				"total_syncs":  snap.SyncsTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterHours > 0 {
		if alert := a.evaluateStaleness(snap, now); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	return alerts
}

func (a *Alerter) evaluateStaleness(snap *Snapshot, now time.Time) *Alert {
	if snap.LatestCompleteAt == nil {
		return &Alert{
			Type:      AlertStaleResults,
			Severity:  "medium",
			Message:   "No completed analysis run on record",
			Timestamp: now,
		}
	}

	age := now.Sub(*snap.LatestCompleteAt)
	limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
	if age <= limit {
		return nil
	}
	return &Alert{
		Type:     AlertStaleResults,
		Severity: "medium",
		Message: fmt.Sprintf(
			"Newest completed analysis run is %.0fh old, limit is %dh",
			age.Hours(), a.cfg.StaleAfterHours,
		),
		Details: map[string]any{
			"age_hours":   age.Hours(),
			"limit_hours": a.cfg.StaleAfterHours,
			"finished_at": snap.LatestCompleteAt,
		},
		Timestamp: now,
	}
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
