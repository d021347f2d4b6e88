package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// WebhookDeliverer posts the job as JSON to a URL carried in the payload data.
type WebhookDeliverer struct {
	client *http.Client
	logger *zap.Logger
}

type WebhookConfig struct {
	DefaultTimeout time.Duration
}

// webhookBody is what the receiving endpoint gets.
type webhookBody struct {
	JobID        string            `json:"job_id"`
	UserID       string            `json:"user_id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	ScheduledFor time.Time         `json:"scheduled_for"`
}

func NewWebhookDeliverer(logger *zap.Logger, cfg WebhookConfig) *WebhookDeliverer {
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookDeliverer{
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, n *job.Notification) error {
	if n.Payload.Channel != job.ChannelWebhook {
		return fmt.Errorf("webhook deliverer only supports webhooks, got: %s", n.Payload.Channel)
	}

	url := n.Payload.Data["url"]
	if url == "" {
		return fmt.Errorf("webhook payload missing 'url' data field")
	}

	body, err := json.Marshal(webhookBody{
		JobID:        n.ID.String(),
		UserID:       n.UserID,
		Type:         string(n.Type),
		Title:        n.Payload.Title,
		Body:         n.Payload.Body,
		Data:         n.Payload.Data,
		ScheduledFor: n.ScheduledFor,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pitchside/1.0.0")
	req.Header.Set("X-Pitchside-Job-ID", n.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body for logging/debugging
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	// Accept 2xx status codes as success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	d.logger.Info("webhook delivered successfully",
		zap.String("id", n.ID.String()),
		zap.String("url", url),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

func (d *WebhookDeliverer) SupportsChannel(channel string) bool {
	return channel == job.ChannelWebhook
}
