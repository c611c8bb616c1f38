package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

// AssignmentHandler wires the student-facing assignment and question routes.
type AssignmentHandler struct {
	service   service.AssignmentService
	sync      service.QuestionSyncService
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service service.AssignmentService, sync service.QuestionSyncService, keepAlive time.Duration, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service:   service,
		sync:      sync,
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/questions", h.questions)
	router.Get("/:id/questions/stream", h.stream)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	req, err := parseAssignmentListRequest(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignments, err := h.service.List(requestContext(c), req)
	if err != nil {
		return internalError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Get(requestContext(c), id, false)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) questions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	if _, err := h.service.Get(ctx, id, false); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	result, err := h.sync.Sync(ctx, id, strings.TrimSpace(c.Query("version")))
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "questions retrieved", result)
}

func (h *AssignmentHandler) stream(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	if _, err := h.service.Get(ctx, id, false); err != nil {
		return mapServiceError(c, h.logger, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := h.sync.Subscribe(id)

	keepAliveInterval := h.keepAlive
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			unsubscribe()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, "questions.changed", event); err != nil {
					h.logger.Debug().Err(err).Uint("assignment_id", id).Msg("failed to write question event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Uint("assignment_id", id).Msg("question stream closed")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func parseAssignmentListRequest(c *fiber.Ctx) (dto.AssignmentListRequest, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return dto.AssignmentListRequest{}, fmt.Errorf("invalid page")
	}
	pageSize, err := parseQueryInt(c, "pageSize")
	if err != nil {
		return dto.AssignmentListRequest{}, fmt.Errorf("invalid pageSize")
	}

	return dto.AssignmentListRequest{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
		Subject:  strings.TrimSpace(c.Query("subject")),
		Sort:     strings.TrimSpace(c.Query("sort")),
	}, nil
}

func writeEvent(w *bufio.Writer, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
