// Package transport is the JSON client for the assistant backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/metrics"
	"github.com/designdesk/designdesk/internal/shared"
	"github.com/google/uuid"
)

// DefaultTimeout is the ceiling for a single backend call. Analyses collect
// and summarize reviews synchronously, so it is deliberately long.
const DefaultTimeout = 300 * time.Second

const maxResponseSize = 32 << 20

// RequestIDHeader carries a per-call correlation ID to the backend.
const RequestIDHeader = "X-Request-ID"

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client issues requests against the backend. Each Client owns a cookie jar,
// so the backend session cookie travels with every call made through it.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		base:   base,
		logger: cfg.Logger,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
	if err := c.resetJar(); err != nil {
		return nil, err
	}
	return c, nil
}

// Fork returns a Client sharing the connection pool and timeout of c but with
// an empty cookie jar.
func (c *Client) Fork() *Client {
	forked := &Client{
		base:   c.base,
		logger: c.logger,
		http: &http.Client{
			Timeout:   c.http.Timeout,
			Transport: c.http.Transport,
		},
	}
	// cookiejar.New only fails on a bad PublicSuffixList, and none is passed.
	_ = forked.resetJar()
	return forked
}

func (c *Client) resetJar() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	c.http.Jar = jar
	return nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ScenarioChat sends a question to the scenario assistant.
func (c *Client) ScenarioChat(ctx context.Context, text string) (*domain.ChatReply, error) {
	var out domain.ChatReply
	body := map[string]string{"message": text}
	if err := c.do(ctx, "scenario_chat", http.MethodPost, "/scenario/chat", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatbotChat sends a message to the design chatbot as designerType.
func (c *Client) ChatbotChat(ctx context.Context, text, designerType string) (*domain.ChatReply, error) {
	var out domain.ChatReply
	body := map[string]string{"message": text, "designerType": designerType}
	if err := c.do(ctx, "chatbot_chat", http.MethodPost, "/chatbot/chat", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatbotHistory loads the chatbot history persisted for this client's session.
func (c *Client) ChatbotHistory(ctx context.Context) (*domain.HistoryReply, error) {
	var out domain.HistoryReply
	if err := c.do(ctx, "chatbot_history", http.MethodGet, "/chatbot/history", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatbotClear deletes the chatbot history for this client's session.
func (c *Client) ChatbotClear(ctx context.Context) (*domain.ClearReply, error) {
	var out domain.ClearReply
	if err := c.do(ctx, "chatbot_clear", http.MethodPost, "/chatbot/clear", nil, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchGames searches the store catalog.
func (c *Client) SearchGames(ctx context.Context, query string) (*domain.SearchReply, error) {
	var out domain.SearchReply
	q := url.Values{"q": []string{query}}
	if err := c.do(ctx, "review_search", http.MethodGet, "/review/search/games", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchReviews collects raw reviews for a game.
func (c *Client) FetchReviews(ctx context.Context, appID int64, opts domain.FetchOptions) (*domain.FetchReply, error) {
	var out domain.FetchReply
	path := "/review/steam/" + strconv.FormatInt(appID, 10)
	if err := c.do(ctx, "review_fetch", http.MethodGet, path, opts.Values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type analyzeRequest struct {
	AppID    int64                 `json:"app_id"`
	Settings analyzeRequestOptions `json:"settings"`
	UseGPT   bool                  `json:"use_gpt"`
}

type analyzeRequestOptions struct {
	Language   string `json:"language"`
	ReviewType string `json:"review_type"`
	DayRange   int    `json:"day_range"`
}

// Analyze runs a review analysis for a game.
func (c *Client) Analyze(ctx context.Context, appID int64, settings domain.AnalysisSettings) (*domain.AnalyzeResponse, error) {
	var out domain.AnalyzeResponse
	body := analyzeRequest{
		AppID: appID,
		Settings: analyzeRequestOptions{
			Language:   settings.Language,
			ReviewType: settings.ReviewType,
			DayRange:   settings.DayRange,
		},
		UseGPT: settings.UseAISummary,
	}
	if err := c.do(ctx, "review_analyze", http.MethodPost, "/review/analyze", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one call. A body that decodes into out is returned as a
// response whatever the status code, since the backend reports application
// failures with 4xx/5xx plus a JSON envelope. Everything else is a transport
// failure.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.BackendRequest(endpoint, err == nil, time.Since(start))
	}()

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "endpoint", endpoint, "request_id", reqID, "error", err)
		return shared.Transport(err.Error(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close backend response body", "endpoint", endpoint, "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Warn("Backend response read failed", "endpoint", endpoint, "request_id", reqID, "error", err)
		return shared.Transport(err.Error(), err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("Backend response not decodable",
			"endpoint", endpoint,
			"request_id", reqID,
			"status", resp.StatusCode,
			"error", err,
		)
		if resp.StatusCode >= http.StatusBadRequest {
			return shared.Transport(fmt.Sprintf("backend returned status %d", resp.StatusCode), err)
		}
		return shared.Transport("malformed backend response", err)
	}

	c.logger.Debug("Backend request complete",
		"endpoint", endpoint,
		"request_id", reqID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return nil
}
