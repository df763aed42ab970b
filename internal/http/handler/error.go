package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"docview/internal/apperr"
	"docview/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeServiceError maps a service failure onto the error envelope.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrInvalidFilename):
		return writeError(c, fiber.StatusBadRequest, "INVALID_FILENAME", "invalid filename")
	case errors.Is(err, apperr.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, apperr.ErrMirrorDisabled):
		return writeError(c, fiber.StatusNotImplemented, "MIRROR_DISABLED", "page mirror is not configured")
	case apperr.IsRenderError(err):
		return writeError(c, fiber.StatusUnprocessableEntity, "RENDER_ERROR", "document could not be rendered")
	case apperr.IsExtractionError(err):
		return writeError(c, fiber.StatusUnprocessableEntity, "EXTRACTION_ERROR", "text could not be extracted")
	case apperr.IsStoreError(err):
		return writeError(c, fiber.StatusServiceUnavailable, "STORE_UNAVAILABLE", "metadata store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return writeError(c, fiber.StatusGatewayTimeout, "TIMEOUT", "request timed out")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
