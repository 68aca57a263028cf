package service

import (
	"context"
	"errors"
	"time"

	"personal-knowledge-be/internal/config"
	"personal-knowledge-be/internal/constant"
	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/internal/pkg/logger"
	"personal-knowledge-be/pkg/llm"
	"personal-knowledge-be/pkg/prompt"
	"personal-knowledge-be/pkg/retrieval"
	"personal-knowledge-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Request lifecycle states, logged at debug level for each transition.
const (
	stateReceived      = "RECEIVED"
	stateRetrieving    = "RETRIEVING"
	stateAssembling    = "ASSEMBLING"
	stateDispatching   = "DISPATCHING"
	stateStreaming     = "STREAMING"
	stateCompleted     = "COMPLETED"
	stateMemoryUpdated = "MEMORY_UPDATED"
	stateFailed        = "FAILED"
)

// StreamHandle is what a streaming completion hands back to the transport:
// session metadata up front, then deltas on Chunks. Memory updates happen
// inside the service once the stream finishes.
type StreamHandle struct {
	SessionId    string
	CitedSources []dto.CitedSource
	Chunks       <-chan llm.StreamChunk
}

type IChatService interface {
	Chat(ctx context.Context, request *dto.CompletionRequest) (*dto.CompletionResponse, error)
	ChatStream(ctx context.Context, request *dto.CompletionRequest) (*StreamHandle, error)
	ListModels() *dto.ListModelsResponse
	CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error)
	GetHistory(ctx context.Context, sessionId string) (*dto.GetSessionHistoryResponse, error)
	ResetSession(ctx context.Context, sessionId string) (*dto.ResetSessionResponse, error)
	DeleteSession(ctx context.Context, sessionId string) error
}

type chatService struct {
	cfg         *config.Config
	provider    llm.LLMProvider
	retriever   retrieval.Retriever
	assembler   *prompt.Assembler
	sessionRepo store.SessionStore
	logger      logger.ILogger
}

func NewChatService(
	cfg *config.Config,
	provider llm.LLMProvider,
	retriever retrieval.Retriever,
	assembler *prompt.Assembler,
	sessionRepo store.SessionStore,
	log logger.ILogger,
) IChatService {
	return &chatService{
		cfg:         cfg,
		provider:    provider,
		retriever:   retriever,
		assembler:   assembler,
		sessionRepo: sessionRepo,
		logger:      log,
	}
}

func (cs *chatService) transition(sessionId, state string) {
	cs.logger.Debug("CHAT_SERVICE", "state transition", map[string]interface{}{
		"session_id": sessionId,
		"state":      state,
	})
}

// preparedRequest is everything the dispatch step needs, shared between the
// buffered and streaming paths.
type preparedRequest struct {
	sessionId   string
	userMessage string
	messages    []llm.Message
	cited       []dto.CitedSource
	fallback    bool
}

func (cs *chatService) prepare(ctx context.Context, request *dto.CompletionRequest) (*preparedRequest, error) {
	if !cs.modelKnown(request.Model) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "unknown model: "+request.Model)
	}

	last := request.Messages[len(request.Messages)-1]
	if last.Role != constant.ChatMessageRoleUser {
		return nil, fiber.NewError(fiber.StatusBadRequest, "last message must have role 'user'")
	}

	sessionId := request.SessionId
	if sessionId == "" {
		sessionId = uuid.NewString()
	}
	cs.transition(sessionId, stateReceived)

	session, err := cs.sessionRepo.Get(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	history := cs.boundedHistory(session)

	prep := &preparedRequest{
		sessionId:   sessionId,
		userMessage: last.Content,
	}

	var snippets []retrieval.ContextSnippet
	if request.IncludeContext {
		cs.transition(sessionId, stateRetrieving)
		snippets, err = cs.retriever.Retrieve(ctx, prep.userMessage, cs.cfg.Retrieval.TopK)
		if err != nil {
			// Retrieval failure degrades to an answer without context rather
			// than failing the whole request. The model is still dispatched,
			// with the fallback instruction in place of the context block.
			cs.logger.Warn("CHAT_SERVICE", "retrieval failed, continuing without context", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
			snippets = nil
		} else if len(snippets) == 0 {
			// Retrieval worked and truly found nothing: answer with the
			// fixed fallback text, no model call.
			prep.fallback = true
			return prep, nil
		}
		for _, s := range snippets {
			prep.cited = append(prep.cited, dto.CitedSource{
				SourceId: s.SourceID,
				Score:    float64(s.Score),
			})
		}
	}

	cs.transition(sessionId, stateAssembling)
	messages, err := cs.assembler.Assemble(history, prep.userMessage, snippets, request.IncludeContext)
	if err != nil {
		cs.transition(sessionId, stateFailed)
		return nil, err
	}
	prep.messages = messages
	return prep, nil
}

func (cs *chatService) modelKnown(model string) bool {
	for _, m := range cs.cfg.Agent.Models {
		if m == model {
			return true
		}
	}
	return false
}

// boundedHistory converts stored turns to provider messages, keeping only the
// most recent window so long sessions stay within the model context.
func (cs *chatService) boundedHistory(session *store.Session) []llm.Message {
	turns := session.Turns
	limit := cs.cfg.Session.HistoryLimit
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	history := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, llm.Message{Role: t.Role, Content: t.Content})
	}
	return history
}

func (cs *chatService) callOptions(request *dto.CompletionRequest) []llm.Option {
	opts := []llm.Option{llm.WithModel(request.Model)}
	if request.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*request.Temperature))
	}
	if request.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(request.MaxTokens))
	}
	return opts
}

// shouldRetry reports whether a dispatch error warrants another attempt, and
// waits out the retry backoff when it does.
func (cs *chatService) shouldRetry(ctx context.Context, err error, attempt int) bool {
	var providerErr *llm.ProviderError
	if !errors.As(err, &providerErr) || !providerErr.Retriable {
		return false
	}
	if attempt >= cs.cfg.Agent.RetryMaxAttempts {
		return false
	}
	select {
	case <-time.After(cs.cfg.Agent.RetryTimeout):
		return true
	case <-ctx.Done():
		return false
	}
}

func (cs *chatService) updateMemory(ctx context.Context, sessionId, userMessage, reply string) {
	if err := cs.sessionRepo.Append(ctx, sessionId, store.Turn{
		Role:      constant.ChatMessageRoleUser,
		Content:   userMessage,
		CreatedAt: time.Now(),
	}); err != nil {
		cs.logger.Error("CHAT_SERVICE", "failed to store user turn", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return
	}
	if err := cs.sessionRepo.Append(ctx, sessionId, store.Turn{
		Role:      constant.ChatMessageRoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}); err != nil {
		cs.logger.Error("CHAT_SERVICE", "failed to store assistant turn", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return
	}
	cs.transition(sessionId, stateMemoryUpdated)
}

func (cs *chatService) Chat(ctx context.Context, request *dto.CompletionRequest) (*dto.CompletionResponse, error) {
	prep, err := cs.prepare(ctx, request)
	if err != nil {
		return nil, err
	}

	if prep.fallback {
		cs.updateMemory(ctx, prep.sessionId, prep.userMessage, constant.NoContextFallbackMessage)
		cs.transition(prep.sessionId, stateCompleted)
		return &dto.CompletionResponse{
			SessionId:    prep.sessionId,
			Content:      constant.NoContextFallbackMessage,
			FinishReason: constant.FinishReasonStop,
		}, nil
	}

	cs.transition(prep.sessionId, stateDispatching)
	opts := cs.callOptions(request)

	var reply string
	for attempt := 0; ; attempt++ {
		reply, err = cs.provider.Chat(ctx, prep.messages, opts...)
		if err == nil {
			break
		}
		if cs.shouldRetry(ctx, err, attempt) {
			cs.logger.Warn("CHAT_SERVICE", "retrying model dispatch", map[string]interface{}{
				"session_id": prep.sessionId,
				"attempt":    attempt + 1,
				"error":      err.Error(),
			})
			continue
		}
		cs.transition(prep.sessionId, stateFailed)
		return nil, err
	}

	cs.updateMemory(ctx, prep.sessionId, prep.userMessage, reply)
	cs.transition(prep.sessionId, stateCompleted)

	return &dto.CompletionResponse{
		SessionId:    prep.sessionId,
		Content:      reply,
		CitedSources: prep.cited,
		FinishReason: constant.FinishReasonStop,
	}, nil
}

func (cs *chatService) ChatStream(ctx context.Context, request *dto.CompletionRequest) (*StreamHandle, error) {
	prep, err := cs.prepare(ctx, request)
	if err != nil {
		return nil, err
	}

	if prep.fallback {
		out := make(chan llm.StreamChunk, 2)
		out <- llm.StreamChunk{Delta: constant.NoContextFallbackMessage}
		out <- llm.StreamChunk{Done: true, FinishReason: constant.FinishReasonStop}
		close(out)
		cs.updateMemory(ctx, prep.sessionId, prep.userMessage, constant.NoContextFallbackMessage)
		cs.transition(prep.sessionId, stateCompleted)
		return &StreamHandle{SessionId: prep.sessionId, Chunks: out}, nil
	}

	cs.transition(prep.sessionId, stateDispatching)
	opts := cs.callOptions(request)

	var chunks <-chan llm.StreamChunk
	for attempt := 0; ; attempt++ {
		chunks, err = cs.provider.ChatStream(ctx, prep.messages, opts...)
		if err == nil {
			break
		}
		if cs.shouldRetry(ctx, err, attempt) {
			cs.logger.Warn("CHAT_SERVICE", "retrying stream dispatch", map[string]interface{}{
				"session_id": prep.sessionId,
				"attempt":    attempt + 1,
				"error":      err.Error(),
			})
			continue
		}
		cs.transition(prep.sessionId, stateFailed)
		return nil, err
	}

	cs.transition(prep.sessionId, stateStreaming)
	out := make(chan llm.StreamChunk)
	go cs.pumpStream(ctx, prep, chunks, out)

	return &StreamHandle{
		SessionId:    prep.sessionId,
		CitedSources: prep.cited,
		Chunks:       out,
	}, nil
}

// pumpStream forwards provider chunks to the transport while accumulating the
// full reply. Memory is written only when the stream completes normally; a
// failed or cancelled stream leaves the session untouched.
func (cs *chatService) pumpStream(ctx context.Context, prep *preparedRequest, in <-chan llm.StreamChunk, out chan<- llm.StreamChunk) {
	defer close(out)

	var reply []byte
	for chunk := range in {
		if chunk.Err != nil {
			cs.transition(prep.sessionId, stateFailed)
			select {
			case out <- chunk:
			case <-ctx.Done():
			}
			return
		}
		if chunk.Delta != "" {
			reply = append(reply, chunk.Delta...)
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			cs.transition(prep.sessionId, stateFailed)
			return
		}
		if chunk.Done {
			if ctx.Err() != nil {
				cs.transition(prep.sessionId, stateFailed)
				return
			}
			// Use a fresh context: the request context ends when the client
			// closes the connection, but the reply is already complete.
			storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			cs.updateMemory(storeCtx, prep.sessionId, prep.userMessage, string(reply))
			cancel()
			cs.transition(prep.sessionId, stateCompleted)
			return
		}
	}
	// Provider closed the channel without a terminal chunk; treat as cancelled.
	cs.transition(prep.sessionId, stateFailed)
}

func (cs *chatService) ListModels() *dto.ListModelsResponse {
	res := &dto.ListModelsResponse{Object: "list", Data: []dto.ModelInfo{}}
	for _, m := range cs.cfg.Agent.Models {
		res.Data = append(res.Data, dto.ModelInfo{
			Id:      m,
			Object:  "model",
			OwnedBy: "organization",
		})
	}
	return res
}

func (cs *chatService) CreateSession(ctx context.Context) (*dto.CreateSessionResponse, error) {
	sessionId := uuid.NewString()
	if _, err := cs.sessionRepo.Get(ctx, sessionId); err != nil {
		return nil, err
	}
	return &dto.CreateSessionResponse{SessionId: sessionId}, nil
}

func (cs *chatService) GetHistory(ctx context.Context, sessionId string) (*dto.GetSessionHistoryResponse, error) {
	session, err := cs.sessionRepo.Get(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	res := &dto.GetSessionHistoryResponse{
		SessionId: sessionId,
		Turns:     make([]dto.SessionTurnDTO, 0, len(session.Turns)),
	}
	for _, t := range session.Turns {
		res.Turns = append(res.Turns, dto.SessionTurnDTO{
			Role:      t.Role,
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		})
	}
	return res, nil
}

func (cs *chatService) ResetSession(ctx context.Context, sessionId string) (*dto.ResetSessionResponse, error) {
	if err := cs.sessionRepo.Reset(ctx, sessionId); err != nil {
		return nil, err
	}
	return &dto.ResetSessionResponse{SessionId: sessionId, Reset: true}, nil
}

func (cs *chatService) DeleteSession(ctx context.Context, sessionId string) error {
	return cs.sessionRepo.Delete(ctx, sessionId)
}
