package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Block-Logic/ping-thing-client/internal/metrics"
)

// AlertType categorizes the kind of alert.
type AlertType string

const (
	// AlertTypeWatcherDown fires when a background watcher exhausted
	// its failure budget and the process is shutting down.
	AlertTypeWatcherDown AlertType = "WATCHER_DOWN"
	// AlertTypeProbeStalled fires when the probe loop hit its
	// consecutive-failure ceiling.
	AlertTypeProbeStalled AlertType = "PROBE_STALLED"
	// AlertTypeReportRejected fires when the collection endpoint keeps
	// rejecting measurements.
	AlertTypeReportRejected AlertType = "REPORT_REJECTED"
	AlertTypeRecovery       AlertType = "RECOVERY"
)

// Alert represents a single alert event.
type Alert struct {
	Type    AlertType
	Pinger  string
	Title   string
	Message string
	Fields  map[string]string
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// CooldownAlerter wraps another alerter and suppresses repeats of the
// same alert type within the cooldown window, so a flapping RPC does
// not page every few seconds.
type CooldownAlerter struct {
	next     Alerter
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewCooldownAlerter(next Alerter, cooldown time.Duration, logger *slog.Logger) *CooldownAlerter {
	return &CooldownAlerter{
		next:     next,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		lastSent: make(map[string]time.Time),
	}
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("%s:%s", a.Type, a.Pinger)
}

// Send dispatches the alert unless an identical one fired recently.
func (c *CooldownAlerter) Send(ctx context.Context, alert Alert) error {
	key := cooldownKey(alert)

	c.mu.Lock()
	if last, ok := c.lastSent[key]; ok && time.Since(last) < c.cooldown {
		c.mu.Unlock()
		c.logger.Debug("alert suppressed by cooldown", "key", key)
		return nil
	}
	c.lastSent[key] = time.Now()
	c.mu.Unlock()

	if err := c.next.Send(ctx, alert); err != nil {
		metrics.AlertFailures.Inc()
		c.logger.Warn("alert send failed", "type", alert.Type, "error", err)
		return err
	}
	metrics.AlertsSent.WithLabelValues(string(alert.Type)).Inc()
	return nil
}

// WebhookAlerter sends alerts to a generic HTTP webhook.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

// NewWebhookAlerter creates a generic webhook alerter.
func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends an alert to the webhook endpoint.
func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"type":    string(alert.Type),
		"pinger":  alert.Pinger,
		"title":   alert.Title,
		"message": alert.Message,
		"fields":  alert.Fields,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopAlerter does nothing. Used when no webhook is configured.
type NoopAlerter struct{}

func (n *NoopAlerter) Send(_ context.Context, _ Alert) error { return nil }
