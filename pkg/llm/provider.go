package llm

import (
	"context"
)

// Roles used across the provider-agnostic message format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// StreamChunk is one element of a streamed completion. Chunks arrive in
// generation order. The final chunk has Done set (or Err on failure); the
// channel is closed afterwards and cannot be restarted.
type StreamChunk struct {
	Delta        string
	Done         bool
	FinishReason string
	Err          error
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// ApplyOptions folds opts over the defaults.
func ApplyOptions(opts ...Option) *Options {
	options := &Options{
		Temperature: 0.1,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// LLMProvider defines the contract for any LLM backend.
//
// ChatStream returns a lazy, finite, non-restartable sequence of chunks.
// Cancelling ctx aborts the underlying provider request; the channel is
// closed after the final (Done or Err) chunk either way.
type LLMProvider interface {
	// Chat sends a chat history to the model and blocks for the full response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// ChatStream sends a chat history and streams back deltas as they arrive
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan StreamChunk, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
