package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/internal/pkg/logger"
	"personal-knowledge-be/internal/pkg/serverutils"
	"personal-knowledge-be/internal/service"
	"personal-knowledge-be/pkg/llm"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatService struct {
	chatRes   *dto.CompletionResponse
	chatErr   error
	streamRes *service.StreamHandle
	streamErr error
	deleted   []string
}

func (s *stubChatService) Chat(ctx context.Context, request *dto.CompletionRequest) (*dto.CompletionResponse, error) {
	return s.chatRes, s.chatErr
}

func (s *stubChatService) ChatStream(ctx context.Context, request *dto.CompletionRequest) (*service.StreamHandle, error) {
	return s.streamRes, s.streamErr
}

func (s *stubChatService) ListModels() *dto.ListModelsResponse {
	return &dto.ListModelsResponse{Object: "list", Data: []dto.ModelInfo{{Id: "gpt-4", Object: "model", OwnedBy: "organization"}}}
}

func (s *stubChatService) CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error) {
	return &dto.CreateSessionResponse{SessionId: "new-session"}, nil
}

func (s *stubChatService) GetHistory(ctx context.Context, sessionId string) (*dto.GetSessionHistoryResponse, error) {
	return &dto.GetSessionHistoryResponse{SessionId: sessionId, Turns: []dto.SessionTurnDTO{{Role: "system", Content: "p"}}}, nil
}

func (s *stubChatService) ResetSession(ctx context.Context, sessionId string) (*dto.ResetSessionResponse, error) {
	return &dto.ResetSessionResponse{SessionId: sessionId, Reset: true}, nil
}

func (s *stubChatService) DeleteSession(ctx context.Context, sessionId string) error {
	s.deleted = append(s.deleted, sessionId)
	return nil
}

func newTestApp(svc service.IChatService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewChatController(svc, true, logger.NewNopLogger()).RegisterRoutes(app)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func validRequest() *dto.CompletionRequest {
	return &dto.CompletionRequest{
		Model:    "gpt-4",
		Messages: []dto.ChatMessage{{Role: "user", Content: "hi"}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(&stubChatService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body dto.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestHealthEndpointDisabled(t *testing.T) {
	app := fiber.New()
	NewChatController(&stubChatService{}, false, logger.NewNopLogger()).RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListModelsEndpoint(t *testing.T) {
	app := newTestApp(&stubChatService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body dto.ListModelsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "gpt-4", body.Data[0].Id)
}

func TestCompletionsBuffered(t *testing.T) {
	svc := &stubChatService{chatRes: &dto.CompletionResponse{
		SessionId:    "s1",
		Content:      "answer",
		FinishReason: "stop",
	}}
	app := newTestApp(svc)

	resp := postJSON(t, app, "/v1/chat/completions", validRequest())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body dto.CompletionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "answer", body.Content)
	assert.Equal(t, "s1", body.SessionId)
}

func TestCompletionsInvalidJSON(t *testing.T) {
	app := newTestApp(&stubChatService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompletionsMissingFields(t *testing.T) {
	app := newTestApp(&stubChatService{})

	resp := postJSON(t, app, "/v1/chat/completions", map[string]interface{}{"model": "gpt-4"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompletionsProviderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{
			name:       "rate limited",
			err:        llm.NewProviderError(llm.ErrKindRateLimited, true, errors.New("429")),
			wantStatus: http.StatusTooManyRequests,
			wantKind:   "rate_limited",
		},
		{
			name:       "timeout",
			err:        llm.NewProviderError(llm.ErrKindTimeout, true, errors.New("deadline")),
			wantStatus: http.StatusGatewayTimeout,
			wantKind:   "timeout",
		},
		{
			name:       "auth",
			err:        llm.NewProviderError(llm.ErrKindAuth, false, errors.New("401")),
			wantStatus: http.StatusBadGateway,
			wantKind:   "auth",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(&stubChatService{chatErr: tc.err})

			resp := postJSON(t, app, "/v1/chat/completions", validRequest())
			assert.Equal(t, tc.wantStatus, resp.StatusCode)

			var envelope dto.ErrorEnvelope
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
			assert.Equal(t, tc.wantKind, envelope.Error.Kind)
		})
	}
}

func TestCompletionsStreaming(t *testing.T) {
	chunks := make(chan llm.StreamChunk, 3)
	chunks <- llm.StreamChunk{Delta: "Hel"}
	chunks <- llm.StreamChunk{Delta: "lo"}
	chunks <- llm.StreamChunk{Done: true, FinishReason: "stop"}
	close(chunks)

	svc := &stubChatService{streamRes: &service.StreamHandle{
		SessionId: "s1",
		Chunks:    chunks,
	}}
	app := newTestApp(svc)

	req := validRequest()
	req.Stream = true
	resp := postJSON(t, app, "/v1/chat/completions", req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, `"session_id":"s1"`)
	assert.Contains(t, body, `"delta":"Hel"`)
	assert.Contains(t, body, `"delta":"lo"`)
	assert.Contains(t, body, `"finish_reason":"stop"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))
}

func TestSessionRoutes(t *testing.T) {
	svc := &stubChatService{}
	app := newTestApp(svc)

	resp := postJSON(t, app, "/v1/sessions", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, app, "/v1/sessions/s1/reset", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"s1"}, svc.deleted)
}
