// Package suggest asks an OpenAI chat model for task lists, reward catalogs
// and time estimates, and validates every reply against a strict schema.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the chat model used for every request.
	DefaultModel = "gpt-4o-mini"

	// SharedKeySentinel is a stored key value meaning "use OPENAI_API_KEY".
	SharedKeySentinel = "hush_hush"
	// KeyEnv is the environment variable holding the shared key.
	KeyEnv = "OPENAI_API_KEY"

	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxTokens    = 1500
)

// ErrNoAPIKey is returned when no usable key is configured.
var ErrNoAPIKey = errors.New("OpenAI API key missing (set it with `grind settings --api-key`)")

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// SchemaError reports a reply that does not have the expected shape.
type SchemaError struct {
	What string
	Err  error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return "invalid AI response: " + e.What
	}
	return fmt.Sprintf("invalid AI response: %s: %v", e.What, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ResolveKey maps the shared-key sentinel to the environment key.
func ResolveKey(key string) string {
	key = strings.TrimSpace(key)
	if key == SharedKeySentinel {
		return os.Getenv(KeyEnv)
	}
	return key
}

// Client talks to the chat completions endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides DefaultBaseURL, mostly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// New creates a Client. The key goes through ResolveKey first.
func New(apiKey string, opts ...Option) (*Client, error) {
	key := ResolveKey(apiKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}

	c := &Client{
		apiKey:     key,
		model:      DefaultModel,
		baseURL:    DefaultBaseURL,
		client:     &http.Client{Timeout: 60 * time.Second},
		retryDelay: initialDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiRequest struct {
	Model          string         `json:"model"`
	Messages       []apiMessage   `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// callAPI sends one system + user exchange and returns the message content.
// Rate limits and server errors are retried with exponential backoff.
func (c *Client) callAPI(ctx context.Context, system, user string, temperature float64) (string, error) {
	reqBody := apiRequest{
		Model: c.model,
		Messages: []apiMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, err := c.do(ctx, jsonBody)
		if err == nil {
			return content, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		var body apiErrorBody
		if json.Unmarshal(respBody, &body) == nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		if msg == "" {
			msg = "OpenAI error"
		}
		return "", &APIError{Status: resp.StatusCode, Message: msg}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &SchemaError{What: "response envelope", Err: err}
	}
	if len(apiResp.Choices) == 0 {
		return "", &SchemaError{What: "empty response"}
	}
	return apiResp.Choices[0].Message.Content, nil
}

// decodeContent strips markdown fences and strictly decodes the JSON object.
func decodeContent(content string, v any) error {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if content == "" {
		return &SchemaError{What: "empty content"}
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return &SchemaError{What: "parse json", Err: err}
	}
	return nil
}
