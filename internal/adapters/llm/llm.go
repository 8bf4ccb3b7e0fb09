// Package llm provides the Client external-collaborator interface used for
// multi-query expansion, reranking, and reference-free evaluation, plus an
// OpenAI-compatible implementation.
package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.GPT4oMini

// DefaultTemperature is used for deterministic-ish completions (reranking)
// unless a caller overrides it.
const DefaultTemperature = 0.0

// Client completes a single prompt and returns the model's raw text
// response. It is deliberately narrow: every caller in this module needs
// nothing beyond "give me text back for this prompt".
type Client interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
	ModelName() string
	Available(ctx context.Context) bool
}

// ErrEmptyResponse is returned when the completion call succeeds but yields
// no choices.
var ErrEmptyResponse = errors.New("llm: completion returned no choices")

// OpenAIClient is a Client backed by an OpenAI-compatible chat completions
// endpoint (OpenAI itself, or any self-hosted server speaking the same
// wire format, selected via BaseURL).
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ Client = (*OpenAIClient)(nil)

// Option configures an OpenAIClient.
type Option func(*OpenAIClient)

// WithBaseURL points the client at a custom (e.g. self-hosted or proxied)
// OpenAI-compatible endpoint instead of the default OpenAI API.
func WithBaseURL(baseURL string) Option {
	return func(c *OpenAIClient) {
		if baseURL != "" {
			cfg := openai.DefaultConfig("")
			cfg.BaseURL = baseURL
			c.client = openai.NewClientWithConfig(cfg)
		}
	}
}

// WithMaxTokens bounds the length of generated completions.
func WithMaxTokens(n int) Option {
	return func(c *OpenAIClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewOpenAIClient builds a Client for the given model, authenticating with
// apiKey. Options are applied after the base client is constructed, so
// WithBaseURL fully replaces the underlying openai.Client.
func NewOpenAIClient(apiKey, model string, opts ...Option) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	c := &OpenAIClient{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) ModelName() string { return c.model }

func (c *OpenAIClient) Available(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}
