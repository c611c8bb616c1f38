package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/middleware"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

// LiveSessionSnapshot is pushed to monitor clients on every tick.
type LiveSessionSnapshot struct {
	AssignmentID uint                      `json:"assignmentId"`
	Sessions     []dto.LiveSessionResponse `json:"sessions"`
	GeneratedAt  time.Time                 `json:"generatedAt"`
}

// LiveSessionHandler serves the admin view of in-progress attempts.
type LiveSessionHandler struct {
	service  service.SessionService
	interval time.Duration
	logger   zerolog.Logger
}

// NewLiveSessionHandler constructs the handler. Interval controls websocket push frequency.
func NewLiveSessionHandler(service service.SessionService, interval time.Duration, logger zerolog.Logger) *LiveSessionHandler {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &LiveSessionHandler{
		service:  service,
		interval: interval,
		logger:   logger.With().Str("component", "live_session_handler").Logger(),
	}
}

// Register binds the live session routes including the websocket upgrade.
func (h *LiveSessionHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Get("", h.list)
}

func (h *LiveSessionHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseQueryUint(c, "assignmentId")
	if err != nil || assignmentID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "assignmentId is required")
	}

	sessions, err := h.service.ListLive(requestContext(c), *assignmentID)
	if err != nil {
		return mapServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "live sessions", sessions)
}

func (h *LiveSessionHandler) handleConnection(conn *websocket.Conn) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(conn.Query("assignmentId")), 10, 64)
	if err != nil || parsed == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "assignmentId required"))
		_ = conn.Close()
		return
	}
	assignmentID := uint(parsed)

	correlationID, _ := conn.Locals("correlation_id").(string)
	ctx, cancel := context.WithCancel(middleware.ContextWithCorrelation(context.Background(), correlationID))
	defer cancel()

	logger := middleware.LoggerWithCorrelation(h.logger, correlationID).With().
		Uint("assignment_id", assignmentID).
		Logger()

	observability.MonitorClientsActive().Inc()
	logger.Info().Msg("live monitor connected")

	readerDone := make(chan struct{})
	defer func() {
		_ = conn.Close()
		<-readerDone
		observability.MonitorClientsActive().Dec()
		logger.Info().Msg("live monitor disconnected")
	}()

	// The read loop only detects client close.
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.push(ctx, conn, assignmentID); err != nil {
			logger.Debug().Err(err).Msg("live monitor push failed")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *LiveSessionHandler) push(ctx context.Context, conn *websocket.Conn, assignmentID uint) error {
	sessions, err := h.service.ListLive(ctx, assignmentID)
	if err != nil {
		return err
	}

	return conn.WriteJSON(LiveSessionSnapshot{
		AssignmentID: assignmentID,
		Sessions:     sessions,
		GeneratedAt:  time.Now().UTC(),
	})
}
