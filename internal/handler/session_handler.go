package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

// SessionHandler wires the attempt lifecycle, deadline, draft and activity routes.
type SessionHandler struct {
	sessions  service.SessionService
	drafts    service.DraftService
	deadlines service.DeadlineService
	limiter   fiber.Handler
	logger    zerolog.Logger
}

// NewSessionHandler constructs the handler. The limiter guards draft writes and may be nil.
func NewSessionHandler(sessions service.SessionService, drafts service.DraftService, deadlines service.DeadlineService, limiter fiber.Handler, logger zerolog.Logger) *SessionHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &SessionHandler{
		sessions:  sessions,
		drafts:    drafts,
		deadlines: deadlines,
		limiter:   limiter,
		logger:    logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register attaches session endpoints to the router group.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Put("", h.setStatus)
	router.Get("", h.lookup)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
	router.Get("/:id/deadline-check", h.deadlineCheck)
	router.Get("/:id/draft", h.loadDraft)
	router.Patch("/:id/draft", h.limiter, h.saveDraft)
	router.Patch("/:id/activity", h.touch)
	router.Post("/:id/beacon", h.beacon)
	router.Post("/:id/exit", h.exit)
}

func (h *SessionHandler) create(c *fiber.Ctx) error {
	var payload dto.SessionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.sessions.Create(requestContext(c), payload)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session created", session)
}

func (h *SessionHandler) setStatus(c *fiber.Ctx) error {
	var payload dto.SessionStatusRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.sessions.SetStatus(requestContext(c), payload)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "session updated", session)
}

func (h *SessionHandler) lookup(c *fiber.Ctx) error {
	var req dto.SessionLookupRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	if raw := strings.TrimSpace(c.Query("findIncomplete")); raw != "" && raw != "true" {
		return utils.SendError(c, fiber.StatusBadRequest, "only incomplete session lookup is supported")
	}

	result, err := h.sessions.FindIncomplete(requestContext(c), req)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "session lookup", result)
}

func (h *SessionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	session, err := h.sessions.Get(requestContext(c), id)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "session retrieved", session)
}

func (h *SessionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.sessions.Delete(requestContext(c), id); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "session deleted", fiber.Map{"id": id})
}

func (h *SessionHandler) deadlineCheck(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.deadlines.Check(requestContext(c), id)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "deadline checked", result)
}

func (h *SessionHandler) loadDraft(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	draft, err := h.drafts.Load(requestContext(c), id)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "draft retrieved", draft)
}

func (h *SessionHandler) saveDraft(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DraftSaveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.drafts.Save(requestContext(c), id, payload)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "draft saved", result)
}

func (h *SessionHandler) touch(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.sessions.TouchActivity(requestContext(c), id); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "activity recorded", fiber.Map{"id": id})
}

// beacon answers 204 regardless of outcome since page-unload clients never read the response.
func (h *SessionHandler) beacon(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if err := h.sessions.Beacon(requestContext(c), id); err != nil {
		requestLogger(h.logger, c).Debug().Err(err).Uint("session_id", id).Msg("beacon ignored")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) exit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SessionExitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.sessions.Exit(requestContext(c), id, payload); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "session exited", fiber.Map{"id": id, "mode": payload.Mode})
}
