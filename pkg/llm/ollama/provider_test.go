package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"personal-knowledge-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStreamDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hello"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":" world"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
		flusher.Flush()
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3", 5*time.Second)
	chunks, err := provider.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	var got string
	var done bool
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		got += chunk.Delta
		done = done || chunk.Done
	}
	assert.Equal(t, "Hello world", got)
	assert.True(t, done)
}

func TestChatStreamHeaderStallTriggersTimeout(t *testing.T) {
	// The server accepts the connection but never writes response headers.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3", 5*time.Second)
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

func TestChatStreamMidStreamStallTriggersTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`)
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	provider := NewOllamaProvider(server.URL, "llama3", 5*time.Second)
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
