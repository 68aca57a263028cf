package dto

// ChatMessage is a single turn in the OpenAI-compatible request body.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant model"`
	Content string `json:"content" validate:"required"`
}

type CompletionRequest struct {
	Model          string        `json:"model" validate:"required"`
	Messages       []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    *float64      `json:"temperature,omitempty"`
	Stream         bool          `json:"stream,omitempty"`
	IncludeContext bool          `json:"include_context,omitempty"`
	SessionId      string        `json:"session_id,omitempty"`
}

type CitedSource struct {
	SourceId string  `json:"source_id"`
	Score    float64 `json:"score"`
}

type CompletionResponse struct {
	SessionId    string        `json:"session_id"`
	Content      string        `json:"content"`
	CitedSources []CitedSource `json:"cited_sources,omitempty"`
	FinishReason string        `json:"finish_reason"`
}

// StreamDelta is one SSE event in a streaming completion. The first event
// carries the session id and cited sources, later ones a delta, the last a
// finish reason.
type StreamDelta struct {
	SessionId    string        `json:"session_id,omitempty"`
	CitedSources []CitedSource `json:"cited_sources,omitempty"`
	Delta        string        `json:"delta,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type ModelInfo struct {
	Id      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type ListModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
