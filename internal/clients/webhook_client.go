package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/sharing"
	"github.com/rs/zerolog"
)

// WebhookClient posts every StatusEvent as JSON to a fixed URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWebhookClient creates a new client for the webhook at url.
func NewWebhookClient(url string, logger zerolog.Logger) *WebhookClient {
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("client", "webhook").Logger(),
	}
}

// Notify delivers the event. Any non-2xx response is an error.
func (c *WebhookClient) Notify(ctx context.Context, event sharing.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned unexpected status code: %d", resp.StatusCode)
	}

	c.logger.Info().Str("kind", string(event.Kind)).Str("user_id", event.UserID).Msg("Delivered status event")
	return nil
}
