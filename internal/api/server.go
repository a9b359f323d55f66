package api

import (
	"context"
	"runtime/debug"

	"archrag/config"
	"archrag/internal/answer"
	"archrag/internal/catalog"
	"archrag/pkg/apperror"
	"archrag/pkg/apperror/status"
	"archrag/pkg/logger"

	"github.com/gofiber/fiber/v3"
)

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Category string `json:"category"`
}

// NewApp builds the HTTP surface: health, catalog stats and question
// answering. cat may be nil when no catalog is available.
func NewApp(cat *catalog.DB) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: config.Cfg.Server.AppName,
	})

	app.Use(panicRecovery())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/stats", func(c fiber.Ctx) error {
		if cat == nil {
			return apperror.BadRequest(config.ModuleServer, c, status.QueryInvalidRequestBody, "catalog unavailable")
		}
		st, err := cat.GetStats()
		if err != nil {
			return apperror.InternalError(config.ModuleServer, c, status.ErrorCodeInternal, err)
		}
		return apperror.Success(c, "stats", st)
	})

	app.Post("/query", func(c fiber.Ctx) error {
		var req queryRequest
		if err := c.Bind().Body(&req); err != nil {
			return apperror.BadRequest(config.ModuleServer, c, status.QueryInvalidRequestBody, "invalid request body")
		}
		if req.Question == "" {
			return apperror.BadRequest(config.ModuleServer, c, status.QueryMissingQuestion, "question is required")
		}

		var rec answer.QuestionRecorder
		if cat != nil {
			rec = cat
		}
		res, err := answer.Ask(context.Background(), req.Question, req.TopK, req.Category, rec)
		if err != nil {
			return apperror.InternalError(config.ModuleServer, c, status.QueryLLMFailed, err)
		}
		return apperror.Success(c, "answer", res)
	})

	return app
}

func panicRecovery() fiber.Handler {
	return func(c fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic":  r,
					"method": c.Method(),
					"path":   c.Path(),
					"stack":  string(debug.Stack()),
				}).Errorf("panic recovered")
				_ = c.Status(fiber.StatusInternalServerError).JSON(apperror.ErrorResponse{
					Error:     "internal server error",
					ErrorCode: "AR-1000",
				})
			}
		}()
		return c.Next()
	}
}
