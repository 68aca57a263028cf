package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"personal-knowledge-be/internal/constant"
	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/internal/pkg/logger"
	"personal-knowledge-be/internal/pkg/serverutils"
	"personal-knowledge-be/internal/service"
	"personal-knowledge-be/pkg/llm"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
	ListModels(ctx *fiber.Ctx) error
	Completions(ctx *fiber.Ctx) error
	CreateSession(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	ResetSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService   service.IChatService
	healthcheckOn bool
	logger        logger.ILogger
}

func NewChatController(chatService service.IChatService, healthcheckOn bool, log logger.ILogger) IChatController {
	return &chatController{
		chatService:   chatService,
		healthcheckOn: healthcheckOn,
		logger:        log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	if c.healthcheckOn {
		r.Get("/health", c.Health)
	}

	v1 := r.Group("/v1")
	v1.Get("/models", c.ListModels)
	v1.Post("/chat/completions", c.Completions)
	v1.Post("/sessions", c.CreateSession)
	v1.Get("/sessions/:id/history", c.GetHistory)
	v1.Post("/sessions/:id/reset", c.ResetSession)
	v1.Delete("/sessions/:id", c.DeleteSession)
}

func (c *chatController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(dto.HealthResponse{Status: "ok"})
}

func (c *chatController) ListModels(ctx *fiber.Ctx) error {
	return ctx.JSON(c.chatService.ListModels())
}

func (c *chatController) Completions(ctx *fiber.Ctx) error {
	var req dto.CompletionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if !req.Stream {
		res, err := c.chatService.Chat(ctx.UserContext(), &req)
		if err != nil {
			return err
		}
		return ctx.JSON(res)
	}

	// The fiber ctx is recycled once this handler returns, so the stream
	// writer gets its own context and owns its cancellation.
	streamCtx, cancel := context.WithCancel(context.Background())
	handle, err := c.chatService.ChatStream(streamCtx, &req)
	if err != nil {
		cancel()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		c.writeStream(w, handle)
	}))
	return nil
}

// writeStream renders the stream handle as server-sent events. A failed flush
// means the client went away; returning cancels the upstream call.
func (c *chatController) writeStream(w *bufio.Writer, handle *service.StreamHandle) {
	head := dto.StreamDelta{SessionId: handle.SessionId, CitedSources: handle.CitedSources}
	if err := writeEvent(w, head); err != nil {
		return
	}

	for chunk := range handle.Chunks {
		if chunk.Err != nil {
			c.logger.Warn("CHAT_CONTROLLER", "stream aborted", map[string]interface{}{
				"session_id": handle.SessionId,
				"error":      chunk.Err.Error(),
			})
			writeStreamError(w, chunk.Err)
			return
		}
		event := dto.StreamDelta{Delta: chunk.Delta}
		if chunk.Done {
			event.FinishReason = chunk.FinishReason
			if event.FinishReason == "" {
				event.FinishReason = constant.FinishReasonStop
			}
		}
		if err := writeEvent(w, event); err != nil {
			return
		}
		if chunk.Done {
			break
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
}

func writeEvent(w *bufio.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeStreamError(w *bufio.Writer, err error) {
	detail := dto.ErrorDetail{Kind: "unknown", Message: err.Error()}
	var providerErr *llm.ProviderError
	if errors.As(err, &providerErr) {
		detail.Kind = string(providerErr.Kind)
		detail.Retriable = providerErr.Retriable
	}
	if payload, jsonErr := json.Marshal(dto.ErrorEnvelope{Error: detail}); jsonErr == nil {
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	res, err := c.chatService.CreateSession(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *chatController) GetHistory(ctx *fiber.Ctx) error {
	res, err := c.chatService.GetHistory(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session history", res))
}

func (c *chatController) ResetSession(ctx *fiber.Ctx) error {
	res, err := c.chatService.ResetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session reset", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.chatService.DeleteSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Session deleted", nil))
}
