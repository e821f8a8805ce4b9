// Package anthropic adapts the Anthropic Claude API to port/llm.Client.
// Grounded on haasonsaas-nexus's internal/agent/providers/anthropic.go
// client construction and MessageNewParams usage, simplified from that
// file's streaming/tool-use provider down to the single-shot Think/Embed
// contract this domain requires; Embed is unsupported since Anthropic
// does not offer an embeddings endpoint.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrEmbeddingsUnsupported is returned by Embed: Anthropic has no
// embeddings API, so this adapter cannot satisfy it.
var ErrEmbeddingsUnsupported = errors.New("anthropic: embeddings are not supported by this provider")

// Config configures the Anthropic adapter.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Client implements port/llm.Client against the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New builds an Anthropic-backed llm.Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Think sends prompt as a single user message, with llmCtx serialized into
// the system prompt, and returns Claude's text response.
func (c *Client) Think(ctx context.Context, prompt string, llmCtx map[string]any) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if len(llmCtx) > 0 {
		ctxBlob, err := json.Marshal(llmCtx)
		if err != nil {
			return "", fmt.Errorf("anthropic: marshal context: %w", err)
		}
		params.System = []anthropic.TextBlockParam{{Text: "context: " + string(ctxBlob)}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// Embed always fails: Anthropic has no embeddings endpoint. Runtimes
// configured with the Anthropic backend must pair it with a separate
// embeddings provider (e.g. the OpenAI or LiteLLM adapter).
func (c *Client) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}
