package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ThinkAdapter wraps Client to satisfy port/llm.Client, routing every
// Think call through the proxy's /v1/chat/completions and every Embed
// call through /v1/embeddings under a fixed model alias.
type ThinkAdapter struct {
	client       *Client
	chatModel    string
	embedModel   string
	systemPrompt string
}

// NewThinkAdapter builds a port/llm.Client-satisfying wrapper around an
// already-configured litellm Client. chatModel and embedModel are the
// LiteLLM model aliases to route Think/Embed requests to.
func NewThinkAdapter(client *Client, chatModel, embedModel string) *ThinkAdapter {
	return &ThinkAdapter{client: client, chatModel: chatModel, embedModel: embedModel}
}

// WithSystemPrompt sets a fixed system message prepended to every Think
// call, e.g. a role persona description assembled by AgentRuntime.
func (a *ThinkAdapter) WithSystemPrompt(prompt string) *ThinkAdapter {
	a.systemPrompt = prompt
	return a
}

// Think builds a single-turn chat completion request from prompt and the
// freeform llmCtx, and returns the model's text content. A non-empty llmCtx
// is JSON-encoded into a "context: {...}" system message placed before the
// user prompt, so role-specific context (department, persona traits, recent
// memory) reaches the model without requiring a dedicated template per
// caller.
func (a *ThinkAdapter) Think(ctx context.Context, prompt string, llmCtx map[string]any) (string, error) {
	messages := make([]ChatMessage, 0, 3)
	if a.systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: a.systemPrompt})
	}
	if len(llmCtx) > 0 {
		ctxBlob, err := json.Marshal(llmCtx)
		if err != nil {
			return "", fmt.Errorf("think: marshal context: %w", err)
		}
		messages = append(messages, ChatMessage{Role: "system", Content: "context: " + string(ctxBlob)})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	resp, err := a.client.ChatCompletion(ctx, ChatCompletionRequest{
		Model:    a.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("think: %w", err)
	}
	return resp.Content, nil
}

// embeddingRequest is the body of POST /v1/embeddings.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the OpenAI-compatible embeddings response shape
// LiteLLM proxies regardless of the underlying provider.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests a single embedding vector for text from the proxy's
// embeddings endpoint.
func (a *ThinkAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: a.embedModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	data, err := a.client.doRequest(ctx, http.MethodPost, "/v1/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	var raw embeddingResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response data")
	}
	return raw.Data[0].Embedding, nil
}
