// Package deadletter implements component J: the single consumer for every
// ingestor's dead-letter topic, persisting a terminal record and raising an
// operator alert for the event types critical enough to warrant one.
package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Alert is what gets raised for a critical dead-lettered event.
type Alert struct {
	NotificationID string    `json:"notificationId,omitempty"`
	EventType      string    `json:"eventType"`
	SourceTopic    string    `json:"sourceTopic"`
	Reason         string    `json:"reason"`
	ErrorMessage   string    `json:"errorMessage"`
	CorrelationID  string    `json:"correlationId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// AlertSink is the operator-alerting collaborator from spec.md §4.J/§6.
// Slack-webhook-shaped, since that's the alerting mechanism the pack's
// closest teacher candidate for this concern reaches for, but implemented
// generically enough that any incoming-webhook-style endpoint works.
type AlertSink interface {
	Alert(ctx context.Context, a Alert) error
}

// WebhookSink posts Alert as a JSON body to a configured incoming-webhook
// URL. It's the one concrete AlertSink implementation shipped by default;
// Slack, PagerDuty, and Opsgenie incoming webhooks all accept a flavor of
// this shape with minor payload differences a deployer can adapt at the URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a WebhookSink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookSink) Alert(ctx context.Context, a Alert) error {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
		Alert
	}{
		Text:  fmt.Sprintf("[notifyhub] critical dead-letter: %s (%s)", a.EventType, a.Reason),
		Alert: a,
	})
	if err != nil {
		return fmt.Errorf("deadletter: marshaling alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("deadletter: building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deadletter: posting alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deadletter: alert endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopSink discards every alert. Used when no webhook URL is configured,
// so the dead-letter handler still persists and counts without a nil-sink
// check on every message.
type NoopSink struct{}

func (NoopSink) Alert(context.Context, Alert) error { return nil }
