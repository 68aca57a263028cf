package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"personal-knowledge-be/pkg/llm"
)

type OllamaProvider struct {
	BaseURL      string
	ModelName    string
	Client       *http.Client
	DeltaTimeout time.Duration
}

// Ensure OllamaProvider implements LLMProvider
var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string, requestTimeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:   baseURL,
		ModelName: modelName,
		Client: &http.Client{
			Timeout: requestTimeout,
		},
		DeltaTimeout: requestTimeout,
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *OllamaProvider) buildPayload(history []llm.Message, stream bool, opts ...llm.Option) ([]byte, error) {
	options := llm.ApplyOptions(opts...)

	ollamaMessages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		ollamaMessages[i] = ollamaMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	reqPayload := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: options.Temperature,
		},
	}
	if options.MaxTokens > 0 {
		reqPayload.Options.NumPredict = options.MaxTokens
	}

	return json.Marshal(reqPayload)
}

// --- Interface Implementation ---

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	payloadBytes, err := o.buildPayload(history, false, opts...)
	if err != nil {
		return "", llm.NewProviderError(llm.ErrKindUnknown, false, fmt.Errorf("marshal request: %w", err))
	}

	url := o.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", llm.NewProviderError(llm.ErrKindUnknown, false, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

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

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return "", llm.NewProviderError(llm.ErrKindMalformedResponse, false, err)
	}

	return ollamaResp.Message.Content, nil
}

// ChatStream reads Ollama's line-delimited JSON stream and forwards message
// deltas in arrival order.
func (o *OllamaProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamChunk, error) {
	payloadBytes, err := o.buildPayload(history, true, opts...)
	if err != nil {
		return nil, llm.NewProviderError(llm.ErrKindUnknown, false, fmt.Errorf("marshal request: %w", err))
	}

	streamCtx, cancel := context.WithCancel(ctx)

	url := o.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(streamCtx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		cancel()
		return nil, llm.NewProviderError(llm.ErrKindUnknown, false, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Transport: o.Client.Transport}

	// Armed before the request so the wait for response headers is bounded,
	// not just the gaps between deltas.
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

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				o.emit(ctx, out, llm.StreamChunk{Err: llm.NewProviderError(llm.ErrKindMalformedResponse, false, err)})
				return
			}

			watchdog.Reset(o.DeltaTimeout)

			if chunk.Message.Content != "" {
				if !o.emit(ctx, out, llm.StreamChunk{Delta: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				o.emit(ctx, out, llm.StreamChunk{Done: true, FinishReason: "stop"})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if streamCtx.Err() != nil && ctx.Err() == nil {
				o.emit(ctx, out, llm.StreamChunk{Err: llm.NewProviderError(llm.ErrKindTimeout, true,
					fmt.Errorf("no delta within %s", o.DeltaTimeout))})
				return
			}
			o.emit(ctx, out, llm.StreamChunk{Err: llm.ClassifyTransport(err)})
			return
		}
		o.emit(ctx, out, llm.StreamChunk{Err: llm.NewProviderError(llm.ErrKindMalformedResponse, false,
			fmt.Errorf("stream closed before completion"))})
	}()

	return out, nil
}

func (o *OllamaProvider) emit(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	// Reuse Chat for simplicity as most new LLMs are chat-optimized
	return o.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}
