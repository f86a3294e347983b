package trmnl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL = "https://usetrmnl.com"
	devicesPath    = "/api/devices"
	maxErrorBody   = 2048
)

// Config holds remote API settings
type Config struct {
	BaseURL string        `toml:"base_url"`
	Timeout time.Duration `toml:"timeout"`
	// CredentialEnv names the environment variable holding the API key
	CredentialEnv string `toml:"credential_env"`
	// DotEnvPath is an optional .env file loaded before reading CredentialEnv
	DotEnvPath string `toml:"dotenv_path"`
}

// DefaultConfig returns the production API settings
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       30 * time.Second,
		CredentialEnv: "TRMNL_API_KEY",
	}
}

// Client talks to the TRMNL REST API and to the public content feeds.
// Every error it returns is a *Failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
	feedURLs   map[feed.Kind]string
	logger     *slog.Logger
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, feedURLs map[feed.Kind]string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("trmnl base url is empty")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultConfig().Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	urls := make(map[feed.Kind]string, len(feedURLs))
	for k, v := range feedURLs {
		urls[k] = strings.TrimSpace(v)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		feedURLs:   urls,
		logger:     logger,
	}, nil
}

// ListDevices returns every device visible to the API key
func (c *Client) ListDevices(ctx context.Context, apiKey string) ([]Device, error) {
	c.logger.Debug("listing devices", "endpoint", devicesPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+devicesPath, nil)
	if err != nil {
		return nil, &Failure{Kind: FailureUnknown, Err: errors.Wrap(err, "build devices request")}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	body, ferr := c.do(req)
	if ferr != nil {
		return nil, ferr
	}

	devices, ferr := decodeList[Device](body)
	if ferr != nil {
		return nil, ferr
	}

	c.logger.Debug("listed devices", "count", len(devices))
	return devices, nil
}

// FetchFeed returns the current entries of a content feed
func (c *Client) FetchFeed(ctx context.Context, kind feed.Kind) ([]feed.Item, error) {
	url := c.feedURLs[kind]
	if url == "" {
		return nil, &Failure{Kind: FailureUnknown, Err: errors.Errorf("no url configured for feed %s", kind)}
	}
	c.logger.Debug("fetching feed", "feed", kind.String(), "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Failure{Kind: FailureUnknown, Err: errors.Wrap(err, "build feed request")}
	}
	req.Header.Set("Accept", "application/json")

	body, ferr := c.do(req)
	if ferr != nil {
		return nil, ferr
	}

	entries, ferr := decodeList[feedEntry](body)
	if ferr != nil {
		return nil, ferr
	}

	items := make([]feed.Item, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return nil, decodeFailure(errors.Errorf("%s entry %q has no id", kind, e.Title))
		}
		published, ferr := parsePublishedAt(e.PublishedAt)
		if ferr != nil {
			c.logger.Warn("skipping feed entry",
				"feed", kind.String(),
				"entry_id", e.ID,
				"error", ferr)
			continue
		}
		items = append(items, feed.Item{
			ID:          e.ID,
			Title:       e.Title,
			Summary:     e.Summary,
			Link:        e.Link,
			PublishedAt: published,
		})
	}

	c.logger.Debug("fetched feed", "feed", kind.String(), "count", len(items))
	return items, nil
}

func (c *Client) do(req *http.Request) ([]byte, *Failure) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkFailure(errors.Wrapf(err, "call %s %s", req.Method, req.URL.Path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, httpFailure(resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkFailure(errors.Wrap(err, "read response body"))
	}
	return body, nil
}

// decodeList accepts either a bare JSON array or a {"data": [...]} envelope
func decodeList[T any](body []byte) ([]T, *Failure) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, decodeFailure(errors.New("empty response body"))
	}

	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, decodeFailure(errors.Wrap(err, "decode list"))
		}
		return list, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, decodeFailure(errors.Wrap(err, "decode envelope"))
	}
	if env.Error != "" {
		return nil, apiFailure(env.Error)
	}
	if env.Data == nil {
		return []T{}, nil
	}
	return env.Data, nil
}
