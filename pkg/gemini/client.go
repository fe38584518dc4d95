// Package gemini issues prompts to the Gemini generative language API.
//
// Each call makes exactly one POST with no retries. Preconditions are checked
// before any network traffic: the request must carry content, and an API key
// must be configured, in that order.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public generative language endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the API version path segment.
	DefaultAPIVersion = "v1beta"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.5-flash"

	// DefaultTimeout bounds a single upstream call, including streaming.
	DefaultTimeout = 5 * time.Minute

	// APIKeyHeader carries the credential on every call.
	APIKeyHeader = "x-goog-api-key"

	// maxErrorBody caps how much of a failed response is kept for logging.
	maxErrorBody = 64 << 10
)

// Config is the explicit configuration handed to a Client at construction.
type Config struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string

	// Timeout is applied as the HTTP client timeout.
	Timeout time.Duration

	// SSE requests alt=sse framing on streaming calls. When false the API
	// returns a JSON array spread over several lines.
	SSE bool

	// Preamble overrides DefaultPreamble.
	Preamble string

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client issues generateContent and streamGenerateContent calls.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client, filling unset config fields with defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Generate calls generateContent and returns the reply text, or FallbackReply
// when the reply has none.
func (c *Client) Generate(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.do(ctx, "generateContent", nil, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	text := parsed.Text()
	if text == "" {
		c.logger.Debug("upstream reply carried no text")
		return FallbackReply, nil
	}

	return text, nil
}

// Stream calls streamGenerateContent and returns the open response body.
// The caller must close it. Cancelling ctx aborts the upstream request.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	var query url.Values
	if c.config.SSE {
		query = url.Values{"alt": []string{"sse"}}
	}

	resp, err := c.do(ctx, "streamGenerateContent", query, req)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// do validates req, performs the single POST and maps non-2xx replies to
// *UpstreamError. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, method string, query url.Values, req ChatRequest) (*http.Response, error) {
	if !req.HasContent() {
		return nil, ErrEmptyRequest
	}
	if strings.TrimSpace(c.config.APIKey) == "" {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(NewGenerateContentRequest(BuildPrompt(c.config.Preamble, req)))
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := c.endpoint(method, query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(APIKeyHeader, c.config.APIKey)
	if c.config.SSE && method == "streamGenerateContent" {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	c.logger.Debug("sending upstream request",
		"method", method,
		"model", c.config.Model,
		"url", endpoint,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return resp, nil
}

func (c *Client) endpoint(method string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/models/%s:%s",
		c.config.BaseURL,
		c.config.APIVersion,
		url.PathEscape(c.config.Model),
		method,
	)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
