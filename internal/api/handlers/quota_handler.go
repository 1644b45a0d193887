package handlers

import (
	"time"

	"knova/internal/dto"
	"knova/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type QuotaHandler struct {
	quotaService *service.QuotaService
	logger       *zap.Logger
}

func NewQuotaHandler(quotaService *service.QuotaService, logger *zap.Logger) *QuotaHandler {
	return &QuotaHandler{
		quotaService: quotaService,
		logger:       logger,
	}
}

func (h *QuotaHandler) Get(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	quota, err := h.quotaService.Usage(c.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to read quota", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read quota",
		})
	}

	return c.JSON(dto.QuotaResponse{
		MonthlyQuota: quota.MonthlyQuota,
		UsedQuota:    quota.UsedQuota,
		Remaining:    quota.Remaining(),
		ResetDate:    quota.ResetDate.Format(time.RFC3339),
	})
}
