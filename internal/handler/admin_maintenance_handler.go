package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

// AdminMaintenanceHandler exposes storage statistics and manual cleanup.
type AdminMaintenanceHandler struct {
	service service.MaintenanceService
	logger  zerolog.Logger
}

// NewAdminMaintenanceHandler constructs the handler.
func NewAdminMaintenanceHandler(service service.MaintenanceService, logger zerolog.Logger) *AdminMaintenanceHandler {
	return &AdminMaintenanceHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_maintenance_handler").Logger(),
	}
}

// Register attaches maintenance routes to the router group.
func (h *AdminMaintenanceHandler) Register(router fiber.Router) {
	router.Get("/storage", h.storage)
	router.Post("/cleanup", h.cleanup)
}

func (h *AdminMaintenanceHandler) storage(c *fiber.Ctx) error {
	report, err := h.service.StorageReport(requestContext(c))
	if err != nil {
		return internalError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "storage report", report)
}

func (h *AdminMaintenanceHandler) cleanup(c *fiber.Ctx) error {
	var payload dto.CleanupRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Cleanup(requestContext(c), payload, adminActorFromContext(c))
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "cleanup completed", result)
}
