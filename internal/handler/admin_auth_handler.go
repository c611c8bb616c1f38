package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/middleware"
	"github.com/noah-isme/gema-quiz-api/internal/service"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

// AdminAuthHandler issues and clears the admin session cookie.
type AdminAuthHandler struct {
	service      service.AdminAuthService
	secureCookie bool
	logger       zerolog.Logger
}

// NewAdminAuthHandler constructs the handler.
func NewAdminAuthHandler(service service.AdminAuthService, secureCookie bool, logger zerolog.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{
		service:      service,
		secureCookie: secureCookie,
		logger:       logger.With().Str("component", "admin_auth_handler").Logger(),
	}
}

// Register attaches the unauthenticated login and logout routes.
func (h *AdminAuthHandler) Register(router fiber.Router) {
	router.Post("/login", h.login)
	router.Post("/logout", h.logout)
}

func (h *AdminAuthHandler) login(c *fiber.Ctx) error {
	var payload dto.AdminLoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Login(requestContext(c), payload)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid credentials")
		}
		return mapServiceError(c, h.logger, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AdminCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return utils.SendSuccess(c, "logged in", result)
}

func (h *AdminAuthHandler) logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.AdminCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return utils.SendSuccess(c, "logged out", nil)
}
