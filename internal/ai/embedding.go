package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Embed returns the embedding vector for the given text.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, cfg, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. The result has one vector per
// input, in input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: embedding input %d is empty", ErrEmbeddingService, i)
		}
	}

	if c.embedLimiter != nil {
		if err := c.embedLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait failed: %w", ErrEmbeddingService, err)
		}
	}

	var input interface{} = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	req, err := c.newRequest(ctx, cfg.BaseURL, cfg.APIKey, "/embeddings", map[string]interface{}{
		"model": cfg.Model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %w", ErrEmbeddingService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedding response failed: %w", ErrEmbeddingService, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embedding response status %d: %s", ErrEmbeddingService, resp.StatusCode, string(raw))
	}

	vectors, err := parseEmbeddings(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbeddingService, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at %d", ErrEmbeddingService, i)
		}
	}
	return vectors, nil
}

// parseEmbeddings accepts the OpenAI shape and Ollama's native
// {"embedding": [...]} and {"embeddings": [[...]]} shapes.
func parseEmbeddings(raw []byte) ([][]float32, error) {
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Embedding  []float32   `json:"embedding"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}

	switch {
	case len(parsed.Data) > 0:
		sort.SliceStable(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		result := make([][]float32, len(parsed.Data))
		for i := range parsed.Data {
			result[i] = parsed.Data[i].Embedding
		}
		return result, nil
	case len(parsed.Embeddings) > 0:
		return parsed.Embeddings, nil
	case len(parsed.Embedding) > 0:
		return [][]float32{parsed.Embedding}, nil
	}
	return nil, fmt.Errorf("empty embedding in response")
}

// EmbeddingModel binds a client to one embedding model.
type EmbeddingModel struct {
	Client *OpenAICompatibleClient
	Config EmbeddingConfig
}

func (m EmbeddingModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.Client.Embed(ctx, m.Config, text)
}

func (m EmbeddingModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return m.Client.EmbedBatch(ctx, m.Config, texts)
}
