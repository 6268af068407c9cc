package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Hint is the command that confirms a destructive operation.
	Hint string `json:"hint,omitempty"`
}

// statusFor maps a sentinel in err's chain to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vector.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, vector.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, memory.ErrConfirmationRequired),
		errors.Is(err, vector.ErrAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, vector.ErrConnection),
		errors.Is(err, memory.ErrNotConfigured):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error, hint string) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Hint: hint})
}

// errorHandler renders fiber's own errors (unknown routes, bad methods) in
// the same shape as handler errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}
