package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/notifyhub/syften-relay/internal/render"
)

// webhookPayload is the JSON body posted to a Slack incoming webhook.
type webhookPayload struct {
	Channel string         `json:"channel,omitempty"`
	Text    string         `json:"text"`
	Blocks  []render.Block `json:"blocks"`
}

// WebhookChannel delivers notifications by POSTing to a Slack incoming
// webhook. The URL is injected from config so tests can point to a local mock.
type WebhookChannel struct {
	url        string
	httpClient *http.Client
}

func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver posts the notification. Incoming webhooks are bound to a channel
// when they are created; destination is sent as an override and ignored by
// webhooks that do not allow it. Slack answers 200 "ok" on success and a
// 4xx/5xx with a short error code otherwise.
func (c *WebhookChannel) Deliver(ctx context.Context, destination string, n render.Notification) error {
	body, err := json.Marshal(webhookPayload{
		Channel: destination,
		Text:    n.Text,
		Blocks:  n.Blocks,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	code, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	apiErr := &APIError{
		Code:   strings.TrimSpace(string(code)),
		Status: resp.StatusCode,
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

// compile-time check that WebhookChannel implements Channel
var _ Channel = (*WebhookChannel)(nil)
