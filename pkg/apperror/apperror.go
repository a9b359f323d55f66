package apperror

import (
	"fmt"

	"archrag/config"
	"archrag/pkg/apperror/status"
	"archrag/pkg/logger"

	"github.com/gofiber/fiber/v3"
)

// ErrorResponse is the standardized HTTP error payload
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// SuccessResponse is the standardized HTTP success payload
type SuccessResponse struct {
	Code    status.SuccessCode `json:"code"`
	Message string             `json:"message"`
	Data    any                `json:"data,omitempty"`
}

// WriteError logs a structured warning and returns a standardized JSON error
func WriteError(module config.Module, c fiber.Ctx, httpStatus int, code status.ErrorCode, message string) error {
	logger.WithFields(map[string]interface{}{
		"module":        module,
		"status_code":   httpStatus,
		"error_code":    code,
		"error_message": message,
		"http_method":   c.Method(),
		"path":          c.Path(),
		"ip":            c.IP(),
	}).Warnf("http error")

	return c.Status(httpStatus).JSON(ErrorResponse{
		Error:     message,
		ErrorCode: fmt.Sprintf("AR-%d", code),
	})
}

func BadRequest(module config.Module, c fiber.Ctx, code status.ErrorCode, message string) error {
	return WriteError(module, c, fiber.StatusBadRequest, code, message)
}

func InternalError(module config.Module, c fiber.Ctx, code status.ErrorCode, err error) error {
	return WriteError(module, c, fiber.StatusInternalServerError, code, err.Error())
}

// Success writes a standardized JSON success response
func Success(c fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{
		Code:    status.OK,
		Message: message,
		Data:    data,
	})
}
