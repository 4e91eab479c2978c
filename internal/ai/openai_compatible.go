package ai

import (
	"bufio"
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

var (
	ErrCompletionService = errors.New("completion service error")
	ErrEmbeddingService  = errors.New("embedding service error")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatConfig addresses one model on an OpenAI-compatible endpoint.
// Zero MaxTokens and a nil Temperature leave the server defaults.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Temp is a helper for filling ChatConfig.Temperature.
func Temp(v float64) *float64 { return &v }

type OpenAICompatibleClient struct {
	httpClient   *http.Client
	embedLimiter *rate.Limiter
}

type Option func(*OpenAICompatibleClient)

func WithTimeout(d time.Duration) Option {
	return func(c *OpenAICompatibleClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenAICompatibleClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithEmbedRateLimit caps embedding requests per second. rps <= 0 disables it.
func WithEmbedRateLimit(rps float64) Option {
	return func(c *OpenAICompatibleClient) {
		if rps > 0 {
			c.embedLimiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func NewOpenAICompatibleClient(opts ...Option) *OpenAICompatibleClient {
	c := &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func chatRequestBody(cfg ChatConfig, messages []ChatMessage, stream bool) map[string]interface{} {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   stream,
	}
	if cfg.MaxTokens > 0 {
		reqBody["max_tokens"] = cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		reqBody["temperature"] = *cfg.Temperature
	}
	return reqBody
}

func (c *OpenAICompatibleClient) newRequest(ctx context.Context, baseURL, apiKey, path string, body interface{}) (*http.Request, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}
	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

// Complete sends one non-streaming chat completion and returns the first choice.
func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	req, err := c.newRequest(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", chatRequestBody(cfg, messages, false))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: llm request failed: %w", ErrCompletionService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read llm response failed: %w", ErrCompletionService, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: llm response status %d: %s", ErrCompletionService, resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse llm json failed: %w", ErrCompletionService, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty llm choices", ErrCompletionService)
	}
	return parsed.Choices[0].Message.Content, nil
}

// StreamComplete reads an SSE completion, calling onChunk for each content
// delta, and returns the concatenated text.
func (c *OpenAICompatibleClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	req, err := c.newRequest(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", chatRequestBody(cfg, messages, true))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: llm stream request failed: %w", ErrCompletionService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: llm stream status %d: %s", ErrCompletionService, resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		text := chunk.Choices[0].Delta.Content

		full.WriteString(text)
		if onChunk != nil {
			if err := onChunk(text); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: scan llm stream failed: %w", ErrCompletionService, err)
	}
	return full.String(), nil
}
