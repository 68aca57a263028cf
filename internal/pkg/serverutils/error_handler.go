package serverutils

import (
	"errors"

	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/pkg/llm"
	"personal-knowledge-be/pkg/prompt"

	"github.com/gofiber/fiber/v2"
)

// StatusForKind maps the provider error taxonomy onto HTTP status codes.
func StatusForKind(kind llm.ErrorKind) int {
	switch kind {
	case llm.ErrKindRateLimited:
		return fiber.StatusTooManyRequests
	case llm.ErrKindTimeout:
		return fiber.StatusGatewayTimeout
	default:
		// auth, malformed_response and unknown all surface as a bad gateway:
		// the upstream model endpoint misbehaved, not the caller.
		return fiber.StatusBadGateway
	}
}

// ErrorHandlerMiddleware converts errors escaping a handler into the JSON
// error envelope. Provider and assembly errors keep their taxonomy; anything
// else becomes an opaque 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var providerErr *llm.ProviderError
		if errors.As(err, &providerErr) {
			return c.Status(StatusForKind(providerErr.Kind)).JSON(dto.ErrorEnvelope{
				Error: dto.ErrorDetail{
					Kind:      string(providerErr.Kind),
					Message:   providerErr.Error(),
					Retriable: providerErr.Retriable,
				},
			})
		}

		var assemblyErr *prompt.AssemblyError
		if errors.As(err, &assemblyErr) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorEnvelope{
				Error: dto.ErrorDetail{
					Kind:    "invalid_request",
					Message: assemblyErr.Error(),
				},
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(dto.ErrorEnvelope{
				Error: dto.ErrorDetail{
					Kind:    "invalid_request",
					Message: fiberErr.Message,
				},
			})
		}

		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorEnvelope{
			Error: dto.ErrorDetail{
				Kind:    "unknown",
				Message: "internal server error",
			},
		})
	}
}
