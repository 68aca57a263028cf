package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"personal-knowledge-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSuccess(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "test-key", "gpt-4", 5*time.Second)
	reply, err := provider.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Equal(t, "gpt-4", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.InDelta(t, 0.1, gotReq.Temperature, 0.001)
}

func TestChatModelRoleMappedToAssistant(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	_, err := provider.Chat(context.Background(), []llm.Message{
		{Role: "model", Content: "earlier reply"},
		{Role: llm.RoleUser, Content: "next"},
	})

	require.NoError(t, err)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, llm.RoleAssistant, gotReq.Messages[0].Role)
}

func TestChatErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantKind      llm.ErrorKind
		wantRetriable bool
	}{
		{"unauthorized", http.StatusUnauthorized, llm.ErrKindAuth, false},
		{"rate limited", http.StatusTooManyRequests, llm.ErrKindRateLimited, true},
		{"gateway timeout", http.StatusGatewayTimeout, llm.ErrKindTimeout, true},
		{"server error", http.StatusInternalServerError, llm.ErrKindUnknown, true},
		{"bad request", http.StatusBadRequest, llm.ErrKindUnknown, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
			_, err := provider.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
			require.Error(t, err)

			var providerErr *llm.ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Equal(t, tc.wantKind, providerErr.Kind)
			assert.Equal(t, tc.wantRetriable, providerErr.Retriable)
		})
	}
}

func TestChatMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	_, err := provider.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.Error(t, err)

	var providerErr *llm.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, llm.ErrKindMalformedResponse, providerErr.Kind)
	assert.False(t, providerErr.Retriable)
}

func sseEvent(content string, finish *string) string {
	chunk := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"delta": map[string]string{"content": content}, "finish_reason": finish},
		},
	}
	b, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n\n", b)
}

func TestChatStreamDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, sseEvent("Hel", nil))
		flusher.Flush()
		fmt.Fprint(w, sseEvent("lo", nil))
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	chunks, err := provider.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	var content string
	var done bool
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		content += chunk.Delta
		done = done || chunk.Done
	}
	assert.Equal(t, "Hello", content)
	assert.True(t, done)
}

func TestChatStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	_, err := provider.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.Error(t, err)

	var providerErr *llm.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, llm.ErrKindRateLimited, providerErr.Kind)
	assert.True(t, providerErr.Retriable)
}

func TestChatStreamStallTriggersTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, sseEvent("start", nil))
		flusher.Flush()
		// Then stall past the delta timeout.
		<-release
	}))
	defer server.Close()
	defer close(release)

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	provider.DeltaTimeout = 50 * time.Millisecond

	chunks, err := provider.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	var streamErr error
	for chunk := range chunks {
		if chunk.Err != nil {
			streamErr = chunk.Err
		}
	}
	require.Error(t, streamErr)

	var providerErr *llm.ProviderError
	require.ErrorAs(t, streamErr, &providerErr)
	assert.Equal(t, llm.ErrKindTimeout, providerErr.Kind)
	assert.True(t, providerErr.Retriable)
}

func TestChatStreamHeaderStallTriggersTimeout(t *testing.T) {
	// The server accepts the connection but never writes response headers.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	provider.DeltaTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := provider.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "wait for response headers must be bounded")

	var providerErr *llm.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, llm.ErrKindTimeout, providerErr.Kind)
	assert.True(t, providerErr.Retriable)
}

func TestChatStreamCallerCancel(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, sseEvent("partial", nil))
		flusher.Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewOpenAIProvider(server.URL, "", "gpt-4", 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	chunks, err := provider.ChatStream(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	<-started
	cancel()

	// Channel must close; a caller cancel is not a provider timeout.
	for chunk := range chunks {
		if chunk.Err != nil {
			var providerErr *llm.ProviderError
			if errors.As(chunk.Err, &providerErr) {
				assert.NotEqual(t, llm.ErrKindTimeout, providerErr.Kind)
			}
		}
	}
}
