package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/log"
)

// statusFor maps an error kind to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrNotAuthenticated:
		return fiber.StatusUnauthorized
	case domain.ErrNotFound, domain.ErrImageUnavailable:
		return fiber.StatusNotFound
	case domain.ErrInvalidArgument:
		return fiber.StatusBadRequest
	case domain.ErrPreconditionFailed:
		return fiber.StatusConflict
	case domain.ErrRuntimeMissing:
		return fiber.StatusGone
	case domain.ErrExecFailure:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusBadGateway
	}
}

// writeError renders err as {"error": message, "kind": kind}.
func writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  domain.KindName(err),
	})
}

// errorHandler renders errors returned by handlers and by Fiber itself, such
// as unknown routes.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return writeError(c, err)
}

func invalidArgument(op string, err error) error {
	return domain.NewOpError(op, "", domain.ErrInvalidArgument, err)
}
