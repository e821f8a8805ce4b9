// Package llm defines the LLM client port consumed by AgentRuntime. Per
// spec.md §1, the actual reasoning backend is deliberately out of scope;
// only this contract is specified. New port (no teacher equivalent — the
// teacher proxies all LLM work out-of-process over NATS to a Python
// worker); grounded on the context-first, error-returning method shape of
// port/messagequeue.Queue, with concrete adapters wired to
// anthropic-sdk-go, go-openai, and the teacher's litellm HTTP client.
package llm

import "context"

// Client is the contract every LLM backend adapter implements.
// Implementations must be safe for concurrent use. No adapter is built with
// config.LLM.Timeout: the litellm client's HTTP client times out after 10s,
// and the anthropic and openai adapters are bounded only by the caller's ctx.
type Client interface {
	// Think sends prompt with optional structured context and returns the
	// model's text response.
	Think(ctx context.Context, prompt string, llmCtx map[string]any) (string, error)

	// Embed returns a 1536-dimension embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingDimension is the fixed vector size the port contract requires.
const EmbeddingDimension = 1536
