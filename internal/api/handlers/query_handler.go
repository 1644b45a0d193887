package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"knova/internal/dto"
	"knova/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type QueryHandler struct {
	generationService *service.GenerationService
	knowledgeService  *service.KnowledgeService
	logger            *zap.Logger
}

func NewQueryHandler(generationService *service.GenerationService, knowledgeService *service.KnowledgeService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		generationService: generationService,
		knowledgeService:  knowledgeService,
		logger:            logger,
	}
}

// Query answers a question against the caller's knowledge bases in one
// response.
func (h *QueryHandler) Query(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	req, kbIDs, ok := h.parseRequest(c)
	if !ok {
		return nil
	}

	if err := h.knowledgeService.VerifyOwnership(c.Context(), userID, kbIDs); err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Knowledge base not found or not yours",
		})
	}

	resp, err := h.generationService.Query(c.Context(), userID, kbIDs, req.Question, req.TopK, req.History)
	if err != nil {
		var quotaErr *service.InsufficientQuotaError
		if errors.As(err, &quotaErr) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     "Monthly token quota exhausted",
				"remaining": quotaErr.Remaining,
				"required":  quotaErr.Required,
			})
		}
		h.logger.Error("Query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Query failed",
		})
	}

	return c.JSON(resp)
}

// StreamQuery is the server-sent-events variant. Every outcome after the
// headers are written is delivered as an event: sources, then tokens, then
// done, or a terminal error event. The stream never just truncates.
func (h *QueryHandler) StreamQuery(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	req, kbIDs, ok := h.parseRequest(c)
	if !ok {
		return nil
	}

	if err := h.knowledgeService.VerifyOwnership(c.Context(), userID, kbIDs); err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Knowledge base not found or not yours",
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// c is released once the handler returns; only captured values may be
	// used inside the stream writer.
	generation := h.generationService
	logger := h.logger
	question := req.Question
	topK := req.TopK
	history := req.History

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()
		err := generation.StreamQuery(ctx, userID, kbIDs, question, topK, history, func(event service.StreamEvent) error {
			return writeSSE(w, event)
		})
		if err != nil {
			logger.Error("Streaming query failed", zap.Error(err))

			message := "Query failed"
			var quotaErr *service.InsufficientQuotaError
			if errors.As(err, &quotaErr) {
				message = "Monthly token quota exhausted"
			}
			if writeErr := writeSSE(w, fiber.Map{"type": "error", "error": message}); writeErr != nil {
				logger.Debug("Client went away before the error event", zap.Error(writeErr))
			}
		}
	}))

	return nil
}

// parseRequest validates the query payload, writing the 400 response itself.
// The third return reports whether the request may proceed.
func (h *QueryHandler) parseRequest(c *fiber.Ctx) (*dto.QueryRequest, []uuid.UUID, bool) {
	var req dto.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
		return nil, nil, false
	}
	if req.Question == "" || len(req.KnowledgeBaseIDs) == 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question and kb_ids are required",
		})
		return nil, nil, false
	}

	kbIDs := make([]uuid.UUID, 0, len(req.KnowledgeBaseIDs))
	for _, raw := range req.KnowledgeBaseIDs {
		kbID, err := uuid.Parse(raw)
		if err != nil {
			_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Invalid knowledge base ID: %s", raw),
			})
			return nil, nil, false
		}
		kbIDs = append(kbIDs, kbID)
	}

	return &req, kbIDs, true
}

// writeSSE writes one event as an SSE data frame and flushes it so the
// client sees tokens as they arrive.
func writeSSE(w *bufio.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
