// Package backend is the HTTP client for the text-generation and
// embedding service used by the chat applications.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxResponseSize = 4 << 20

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options configures the client. Zero values take the defaults below.
type Options struct {
	URL              string
	CompletionModel  string
	EmbeddingModel   string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	TopK             int
	RepeatPenalty    float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	Timeout          time.Duration
}

func DefaultOptions() Options {
	return Options{
		URL:             "http://localhost:8080",
		CompletionModel: "meta-llama/Llama-3.2-1b-instruct",
		EmbeddingModel:  "meta-llama/Llama-3.2-1b",
		Temperature:     0.7,
		MaxTokens:       1000,
		TopP:            0.9,
		TopK:            40,
		RepeatPenalty:   1.1,
		Timeout:         60 * time.Second,
	}
}

// Client talks to an OpenAI-style /v1/completions and /v1/embeddings
// service.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// NewClient creates a client. Unset options fall back to DefaultOptions.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.URL == "" {
		opts.URL = def.URL
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	if opts.CompletionModel == "" {
		opts.CompletionModel = def.CompletionModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = def.EmbeddingModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Client{opts: opts, httpClient: newHTTPClient(opts.Timeout)}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: timeout,
		},
	}
}

type completionRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	TopP             float64  `json:"top_p"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	Stop             []string `json:"stop"`
	TopK             int      `json:"top_k"`
	RepeatPenalty    float64  `json:"repeat_penalty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Complete requests a completion for prompt and returns the first
// choice's text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := completionRequest{
		Model:            c.opts.CompletionModel,
		Prompt:           prompt,
		Temperature:      c.opts.Temperature,
		MaxTokens:        c.opts.MaxTokens,
		TopP:             c.opts.TopP,
		FrequencyPenalty: c.opts.FrequencyPenalty,
		PresencePenalty:  c.opts.PresencePenalty,
		Stop:             c.opts.Stop,
		TopK:             c.opts.TopK,
		RepeatPenalty:    c.opts.RepeatPenalty,
	}
	var resp completionResponse
	if err := c.post(ctx, "/v1/completions", req, &resp); err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion: response has no choices")
	}
	return resp.Choices[0].Text, nil
}

type embeddingRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
	Normalize      bool   `json:"normalize"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the normalized embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	req := embeddingRequest{
		Model:          c.opts.EmbeddingModel,
		Input:          text,
		EncodingFormat: "float",
		Normalize:      true,
	}
	var resp embeddingResponse
	if err := c.post(ctx, "/v1/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding: response has no data")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
