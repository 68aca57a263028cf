package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"personal-knowledge-be/pkg/llm"
)

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	BaseURL      string
	APIKey       string
	ModelName    string
	Client       *http.Client
	DeltaTimeout time.Duration
}

var _ llm.LLMProvider = &OpenAIProvider{}

func NewOpenAIProvider(baseURL, apiKey, modelName string, requestTimeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		ModelName: modelName,
		Client: &http.Client{
			Timeout: requestTimeout,
		},
		DeltaTimeout: requestTimeout,
	}
}

// --- Request/Response structs (Internal to this package) ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAIProvider) buildPayload(history []llm.Message, stream bool, opts ...llm.Option) ([]byte, error) {
	options := llm.ApplyOptions(opts...)

	messages := make([]chatMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		messages[i] = chatMessage{Role: role, Content: msg.Content}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	return json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   options.MaxTokens,
		Temperature: options.Temperature,
		Stream:      stream,
	})
}

func (o *OpenAIProvider) newRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	url := o.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}
	return req, nil
}

func (o *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	payload, err := o.buildPayload(history, false, opts...)
	if err != nil {
		return "", llm.NewProviderError(llm.ErrKindUnknown, false, err)
	}

	req, err := o.newRequest(ctx, payload)
	if err != nil {
		return "", llm.NewProviderError(llm.ErrKindUnknown, false, err)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", llm.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.ClassifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", llm.ClassifyStatus(resp.StatusCode, string(bodyBytes))
	}

	var parsed chatResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return "", llm.NewProviderError(llm.ErrKindMalformedResponse, false, err)
	}
	if len(parsed.Choices) == 0 {
		return "", llm.NewProviderError(llm.ErrKindMalformedResponse, false,
			fmt.Errorf("response contains no choices"))
	}

	return parsed.Choices[0].Message.Content, nil
}

// ChatStream opens an SSE stream and forwards content deltas in generation
// order. A watchdog aborts the request when the provider stalls longer than
// DeltaTimeout between deltas.
func (o *OpenAIProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamChunk, error) {
	payload, err := o.buildPayload(history, true, opts...)
	if err != nil {
		return nil, llm.NewProviderError(llm.ErrKindUnknown, false, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := o.newRequest(streamCtx, payload)
	if err != nil {
		cancel()
		return nil, llm.NewProviderError(llm.ErrKindUnknown, false, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The client-level timeout would kill long streams; rely on the per-delta
	// watchdog and ctx instead. The watchdog is armed before the request goes
	// out so the wait for response headers is bounded too.
	client := &http.Client{Transport: o.Client.Transport}

	watchdog := time.AfterFunc(o.DeltaTimeout, cancel)

	resp, err := client.Do(req)
	if err != nil {
		watchdog.Stop()
		cancel()
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return nil, llm.NewProviderError(llm.ErrKindTimeout, true,
				fmt.Errorf("no response within %s", o.DeltaTimeout))
		}
		return nil, llm.ClassifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		watchdog.Stop()
		cancel()
		return nil, llm.ClassifyStatus(resp.StatusCode, string(bodyBytes))
	}

	out := make(chan llm.StreamChunk)

	watchdog.Reset(o.DeltaTimeout)

	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close()
		defer watchdog.Stop()

		stalled := func(err error) error {
			// cancel() fired by the watchdog surfaces as context.Canceled on
			// streamCtx while the caller's ctx is still live.
			if streamCtx.Err() != nil && ctx.Err() == nil {
				return llm.NewProviderError(llm.ErrKindTimeout, true,
					fmt.Errorf("no delta within %s", o.DeltaTimeout))
			}
			return llm.ClassifyTransport(err)
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				emit(ctx, out, llm.StreamChunk{Done: true, FinishReason: "stop"})
				return
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				emit(ctx, out, llm.StreamChunk{Err: llm.NewProviderError(llm.ErrKindMalformedResponse, false, err)})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			watchdog.Reset(o.DeltaTimeout)

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				if !emit(ctx, out, llm.StreamChunk{Delta: choice.Delta.Content}) {
					return
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				emit(ctx, out, llm.StreamChunk{Done: true, FinishReason: *choice.FinishReason})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			emit(ctx, out, llm.StreamChunk{Err: stalled(err)})
			return
		}
		// Stream ended without a terminator.
		emit(ctx, out, llm.StreamChunk{Err: llm.NewProviderError(llm.ErrKindMalformedResponse, false,
			fmt.Errorf("stream closed before completion"))})
	}()

	return out, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return o.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// emit sends a chunk unless the caller has gone away.
func emit(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
