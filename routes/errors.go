package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"gif-proxy/client"
	"gif-proxy/engine"
)

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		timeoutErr *engine.TimeoutError
		toolErr    *engine.ToolError
		verifyErr  *engine.VerificationError
		originErr  *client.StatusError
	)

	switch {
	case errors.Is(err, engine.ErrUnsupported):
		return fiber.StatusBadRequest
	case errors.Is(err, engine.ErrUnparsable):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &toolErr), errors.As(err, &verifyErr), errors.As(err, &originErr):
		return fiber.StatusBadGateway
	case errors.Is(err, client.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	}
	return fiber.StatusInternalServerError
}
