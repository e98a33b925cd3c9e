package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tourwise/pulse/pkg/logging"
)

// Sink receives raised alert events. Delivery failures must be non-fatal to
// the caller; the dispatch loop retries undelivered events on its next tick.
type Sink interface {
	Notify(ctx context.Context, events []Event) error
}

// WebhookSink posts alert events as a JSON batch to a configured endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
	logger *logging.StructuredLogger
}

// NewWebhookSink creates a webhook notification sink.
func NewWebhookSink(url string, timeout time.Duration, logger *logging.StructuredLogger) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.WithComponent("alert_webhook"),
	}
}

type webhookPayload struct {
	Source string  `json:"source"`
	Alerts []Event `json:"alerts"`
}

// Notify delivers a batch of events. A non-2xx response counts as failure so
// the batch stays queued for the next dispatch tick.
func (s *WebhookSink) Notify(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Source: "pulse-monitor", Alerts: events})
	if err != nil {
		return fmt.Errorf("marshal alert batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("alert batch delivered", "count", len(events))
	return nil
}

// NopSink drops all events. Used when no notification endpoint is configured.
type NopSink struct{}

// Notify implements Sink.
func (NopSink) Notify(context.Context, []Event) error { return nil }
