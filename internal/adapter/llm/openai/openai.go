// Package openai adapts the OpenAI Chat Completions and Embeddings APIs
// to port/llm.Client. Grounded on haasonsaas-nexus's
// internal/agent/providers/openai.go chat-completion request construction
// and internal/memory/embeddings/openai/openai.go's CreateEmbeddings call,
// collapsed into the single Think/Embed contract this domain requires.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Config configures the OpenAI adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	EmbedModel   string
	SystemPrompt string
}

// Client implements port/llm.Client against the OpenAI API.
type Client struct {
	client       *openai.Client
	chatModel    string
	embedModel   string
	systemPrompt string
}

// New builds an OpenAI-backed llm.Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openai.GPT4o
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = string(openai.SmallEmbedding3)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:       openai.NewClientWithConfig(config),
		chatModel:    chatModel,
		embedModel:   embedModel,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// Think sends prompt as a single user message, with llmCtx folded into a
// system message, and returns the model's text response.
func (c *Client) Think(ctx context.Context, prompt string, llmCtx map[string]any) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 3)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt,
		})
	}
	if len(llmCtx) > 0 {
		ctxBlob, err := json.Marshal(llmCtx)
		if err != nil {
			return "", fmt.Errorf("openai: marshal context: %w", err)
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: "context: " + string(ctxBlob),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed generates a single embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
