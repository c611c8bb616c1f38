package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/middleware"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := c.Params(name)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, err
	}
	id := uint(parsed)
	return &id, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := middleware.LoggerWithCorrelation(base, middleware.GetCorrelationID(c))
	return &logger
}

func adminActorFromContext(c *fiber.Ctx) service.ActivityActor {
	actor := service.AdminActor
	if subject, ok := middleware.CurrentAdmin(c); ok {
		actor.Subject = subject
	}
	return actor
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return validationErrors.Error()
	}
	return err.Error()
}

func internalError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

// mapServiceError translates sentinel errors shared across handlers into HTTP responses.
func mapServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, validationMessage(err))
	case errors.Is(err, service.ErrStudentNameRequired),
		errors.Is(err, service.ErrInvalidQuestion),
		errors.Is(err, service.ErrInvalidGrade),
		errors.Is(err, service.ErrSessionMismatch),
		errors.Is(err, service.ErrUploadTypeNotAllowed),
		errors.Is(err, service.ErrGenerationInput):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrQuestionNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrAnswerNotFound),
		errors.Is(err, service.ErrUploadNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionSubmitted),
		errors.Is(err, service.ErrInvalidSessionTransition),
		errors.Is(err, service.ErrAutoSubmitInProgress):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable),
		errors.Is(err, service.ErrGeneratorUnavailable),
		errors.Is(err, service.ErrDraftUnavailable):
		requestLogger(logger, c).Warn().Err(err).Str("path", c.Path()).Msg("dependency unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		return internalError(c, logger, err)
	}
}
