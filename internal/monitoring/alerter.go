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

	"github.com/sells-group/greenscore/internal/config"
)

// minAnalyses is how many analyses the window needs before the failure
// rate is judged.
const minAnalyses = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "analysis_failure_rate"
	AlertCostOverrun AlertType = "cost_overrun"
)

// Alert is the webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and returns an alert when its threshold is
// crossed.
type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)

var rules = []rule{failureRateRule, costRule}

func failureRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	limit := cfg.FailureRateThreshold
	if limit <= 0 || snap.AnalysesTotal < minAnalyses || snap.FailRate <= limit {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%.1f%% of green analyses failed in the last %dh (%d of %d, limit %.1f%%)",
			snap.FailRate*100, snap.LookbackHours, snap.AnalysesFailed, snap.AnalysesTotal, limit*100),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    limit,
			"failures":     snap.Failures,
		},
	}, true
}

func costRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	limit := cfg.CostThresholdUSD
	if limit <= 0 || snap.CostUSD <= limit {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertCostOverrun,
		Severity: "medium",
		Message: fmt.Sprintf("model spend $%.2f in the last %dh is over the $%.2f limit",
			snap.CostUSD, snap.LookbackHours, limit),
		Details: map[string]any{
			"cost_usd":      snap.CostUSD,
			"threshold_usd": limit,
			"analyses":      snap.AnalysesTotal,
		},
	}, true
}

// Alerter applies the threshold rules and posts alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Evaluate returns the alerts raised by snap.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var out []Alert
	for _, r := range rules {
		alert, ok := r(a.cfg, snap)
		if !ok {
			continue
		}
		alert.Timestamp = snap.CollectedAt
		if alert.Timestamp.IsZero() {
			alert.Timestamp = time.Now().UTC()
		}
		out = append(out, alert)
	}
	return out
}

// SendAlerts posts each alert and returns how many were delivered. Nothing
// is sent without a webhook URL.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	delivered := 0
	for _, alert := range alerts {
		log := zap.L().With(zap.String("alert", string(alert.Type)))
		if err := a.post(ctx, alert); err != nil {
			log.Error("monitoring: alert delivery failed", zap.Error(err))
			continue
		}
		log.Info("monitoring: alert delivered", zap.String("severity", alert.Severity))
		delivered++
	}
	return delivered
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}
