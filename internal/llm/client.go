// Package llm provides a minimal Chat Completions client for
// OpenAI-compatible endpoints such as vLLM.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Message is a single turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by Chat Completions endpoints.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Config holds connection and sampling settings for the chat endpoint.
type Config struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
}

// DefaultConfig returns sampling defaults tuned for code-editing tasks.
// BaseURL, APIKey and Model must be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		Temperature:       0.2,
		TopP:              0.9,
		MaxTokens:         2048,
		RequestTimeoutSec: 180,
	}
}

// Retry policy for transient failures (transport errors, 429, 5xx,
// undecodable 200 bodies).
const (
	maxAttempts    = 4
	baseDelay      = 1500 * time.Millisecond
	maxDelay       = 20 * time.Second
	bodySnippetLen = 500
)

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		},
		sleep: sleepContext,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends the messages and returns the assistant completion text.
// Transient failures are retried with bounded exponential backoff; any
// other non-200 status fails immediately with the response body in the
// error. A 200 response whose message carries no content yields "".
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to create chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt >= maxAttempts {
				return "", fmt.Errorf("chat request failed after retries: %w", err)
			}
			if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
				return "", err
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if attempt >= maxAttempts {
				return "", fmt.Errorf("chat request failed after retries: %w", err)
			}
			if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
				return "", err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var parsed chatResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				// Some providers return truncated or HTML bodies with 200.
				if attempt < maxAttempts {
					if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
						return "", err
					}
					continue
				}
				return "", fmt.Errorf("chat HTTP 200 with invalid JSON: %s", snippet(body))
			}
			if len(parsed.Choices) == 0 {
				return "", fmt.Errorf("chat response has no choices")
			}
			return parsed.Choices[0].Message.Content, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && resp.StatusCode < 600)
		if retryable && attempt < maxAttempts {
			if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
				return "", err
			}
			continue
		}
		return "", fmt.Errorf("chat HTTP %d: %s", resp.StatusCode, string(body))
	}
	return "", fmt.Errorf("chat request failed without a response")
}

// backoffDelay returns the pause before the next attempt: 1.5s doubling
// per attempt, capped at 20s, stretched by up to 25% random jitter.
func backoffDelay(attempt int) time.Duration {
	d := baseDelay << (attempt - 1)
	if d > maxDelay {
		d = maxDelay
	}
	return time.Duration(float64(d) * (1.0 + rand.Float64()*0.25))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(body []byte) string {
	if len(body) > bodySnippetLen {
		body = body[:bodySnippetLen]
	}
	return string(body)
}
