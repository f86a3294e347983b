package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config selects and configures notification sinks
type Config struct {
	Log        bool          `toml:"log"`
	WebhookURL string        `toml:"webhook_url"`
	Timeout    time.Duration `toml:"timeout"`
}

// DefaultConfig logs notifications and posts nowhere
func DefaultConfig() Config {
	return Config{
		Log:     true,
		Timeout: 10 * time.Second,
	}
}

// WebhookNotifier POSTs each notification as JSON to a URL
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier builds a webhook notifier. A nil httpClient gets one
// with the given timeout.
func NewWebhookNotifier(url string, timeout time.Duration, httpClient *http.Client) (*WebhookNotifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &WebhookNotifier{url: url, httpClient: httpClient}, nil
}

// Notify implements Notifier
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return nil
}

// FromConfig assembles the configured sinks
func FromConfig(cfg Config, logNotifier *LogNotifier) (Notifier, error) {
	var sinks Multi
	if cfg.Log {
		sinks = append(sinks, logNotifier)
	}
	if cfg.WebhookURL != "" {
		hook, err := NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, nil)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, hook)
	}
	return sinks, nil
}
