package handler

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

// SubmissionHandler wires submission grading and result routes.
type SubmissionHandler struct {
	service service.SubmissionService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs the handler. The limiter guards submit calls and may be nil.
func NewSubmissionHandler(service service.SubmissionService, limiter fiber.Handler, logger zerolog.Logger) *SubmissionHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &SubmissionHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches student submission routes.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.limiter, h.submit)
	router.Get("", h.history)
	router.Get("/:id", h.get)
}

// RegisterAdmin attaches grading and export routes for administrators.
func (h *SubmissionHandler) RegisterAdmin(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/export", h.export)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
}

// RegisterAnswers attaches manual grading routes.
func (h *SubmissionHandler) RegisterAnswers(router fiber.Router) {
	router.Patch("/:id", h.regrade)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Submit(requestContext(c), payload)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", result)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) history(c *fiber.Ctx) error {
	filter, err := parseSubmissionFilter(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.History(requestContext(c), filter)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission history retrieved", result)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter, err := parseSubmissionFilter(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.List(requestContext(c), filter)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) export(c *fiber.Ctx) error {
	assignmentID, err := parseQueryUint(c, "assignmentId")
	if err != nil || assignmentID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "assignmentId is required")
	}

	filename := fmt.Sprintf("submissions-%d-%s.csv", *assignmentID, time.Now().UTC().Format("20060102"))

	var buf bytes.Buffer
	if err := h.service.ExportCSV(requestContext(c), *assignmentID, &buf); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendAttachment(c, "text/csv; charset=utf-8", filename, buf.Bytes())
}

func (h *SubmissionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), id, adminActorFromContext(c)); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission deleted", fiber.Map{"id": id})
}

func (h *SubmissionHandler) regrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AnswerGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.Regrade(requestContext(c), id, payload, adminActorFromContext(c))
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "answer graded", submission)
}

func parseSubmissionFilter(c *fiber.Ctx) (dto.SubmissionFilter, error) {
	var filter dto.SubmissionFilter

	assignmentID, err := parseQueryUint(c, "assignmentId")
	if err != nil {
		return filter, fmt.Errorf("invalid assignmentId")
	}
	filter.AssignmentID = assignmentID

	if name := c.Query("studentName"); strings.TrimSpace(name) != "" {
		filter.StudentName = &name
	}

	return filter, nil
}
