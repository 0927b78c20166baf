// Package refine calls an OpenAI-compatible chat-completions endpoint to
// rewrite prompts that have been enriched with domain vocabulary.
package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = 2.0 // requests per second
	defaultBurst     = 4
)

// ErrMisconfigured is returned when the client lacks an endpoint, model or key.
var ErrMisconfigured = errors.New("refine: client misconfigured")

// Config describes how to reach the text-generation endpoint.
type Config struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimit    float64       `yaml:"rateLimit"` // requests per second; 0 uses the default
}

// Enabled reports whether enough settings are present to build a client.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Model != "" && c.APIKey != ""
}

// Client posts prompts as chat messages and returns the first completion.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// New builds a client from configuration.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(limit), defaultBurst),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Refine sends prompt as the user message and returns the model's reply.
func (c *Client) Refine(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.endpoint == "" || c.model == "" || c.apiKey == "" {
		return "", ErrMisconfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("refine: rate limiter: %w", err)
	}

	messages := make([]chatMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("refine: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("refine: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refine: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("refine: endpoint error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("refine: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("refine: response has no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
