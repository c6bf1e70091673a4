// Package openai is a minimal client for OpenAI-compatible APIs, covering
// the three endpoints the pipeline needs: embeddings, chat completions, and
// schema-constrained chat completions.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"docqa/internal/domain"
)

// Config configures the client. The API key is read from the environment
// variable named by APIKeyEnv.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	EmbedModel  string
	ChatModel   string
	Timeout     time.Duration
	Temperature float64
}

// Client talks to one OpenAI-compatible endpoint. It implements
// domain.Embedder and domain.TextGenerator.
type Client struct {
	baseURL     string
	apiKey      string
	embedModel  string
	chatModel   string
	temperature float64
	client      *http.Client
	maxRetries  int
}

// NewClient creates a client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		embedModel:  cfg.EmbedModel,
		chatModel:   cfg.ChatModel,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: t},
		maxRetries:  5,
	}, nil
}

// Model returns the embedding model identifier. Build and query phases of a
// collection must use the same identity.
func (c *Client) Model() string { return c.embedModel }

// Embed returns an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}
	payload, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrEmbedding, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", domain.ErrEmbedding, len(texts), len(out.Data))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float64, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", domain.ErrEmbedding, i)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Complete sends a single-message chat completion and returns the text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":       c.chatModel,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	content, err := c.chat(ctx, body)
	if err != nil {
		return "", err
	}
	return content, nil
}

// CompleteStructured requests a completion constrained to the given JSON
// schema and unmarshals it into out. A response that does not decode into
// the schema surfaces as ErrInvalidStructuredOutput, never a partial parse.
func (c *Client) CompleteStructured(ctx context.Context, prompt, schemaName string, schema map[string]any, out any) error {
	body := map[string]any{
		"model":       c.chatModel,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	}
	content, err := c.chat(ctx, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidStructuredOutput, err)
	}
	return nil
}

func (c *Client) chat(ctx context.Context, body map[string]any) (string, error) {
	payload, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrGeneration, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrGeneration)
	}
	return out.Choices[0].Message.Content, nil
}

// post sends a JSON request, retrying transient failures with exponential
// backoff and honoring Retry-After on 429s.
func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + path
	var lastErr error
	skipBackoff := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && !skipBackoff {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		skipBackoff = false
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("request failed: %s", resp.Status)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					_ = resp.Body.Close()
					if err := sleepCtx(ctx, time.Duration(secs)*time.Second); err != nil {
						return nil, err
					}
					// the server already told us how long to wait
					skipBackoff = true
					continue
				}
			}
			_ = resp.Body.Close()
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("request failed: %s: %s", resp.Status, string(payload))
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return payload, nil
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
