package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-quiz-api/internal/config"
	"github.com/noah-isme/gema-quiz-api/internal/handler"
	"github.com/noah-isme/gema-quiz-api/internal/middleware"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler       *handler.AssignmentHandler
	SessionHandler          *handler.SessionHandler
	SubmissionHandler       *handler.SubmissionHandler
	AdminAuthHandler        *handler.AdminAuthHandler
	AdminAssignmentHandler  *handler.AdminAssignmentHandler
	AdminActivityHandler    *handler.AdminActivityHandler
	AdminMaintenanceHandler *handler.AdminMaintenanceHandler
	UploadHandler           *handler.UploadHandler
	LiveSessionHandler      *handler.LiveSessionHandler
	AdminMiddleware         fiber.Handler
	HealthChecks            []handler.DependencyCheck
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks...))

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(api.Group("/assignments"))
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(api.Group("/sessions"))
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions"))
	}

	admin := app.Group("/api/admin")
	if deps.AdminAuthHandler != nil {
		deps.AdminAuthHandler.Register(admin)
	}

	adminMiddleware := deps.AdminMiddleware
	if adminMiddleware == nil {
		adminMiddleware = func(c *fiber.Ctx) error {
			return fiber.ErrUnauthorized
		}
	}
	protected := func(prefix string) fiber.Router {
		return admin.Group(prefix, adminMiddleware, middleware.RequireRole(middleware.RoleAdmin))
	}

	if deps.AdminAssignmentHandler != nil {
		deps.AdminAssignmentHandler.Register(protected("/assignments"))
		deps.AdminAssignmentHandler.RegisterQuestions(protected("/questions"))
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.RegisterAdmin(protected("/submissions"))
		deps.SubmissionHandler.RegisterAnswers(protected("/answers"))
	}
	if deps.UploadHandler != nil {
		deps.UploadHandler.Register(protected("/uploads"))
	}
	if deps.LiveSessionHandler != nil {
		deps.LiveSessionHandler.Register(protected("/sessions"))
	}
	if deps.AdminMaintenanceHandler != nil {
		deps.AdminMaintenanceHandler.Register(protected("/maintenance"))
	}
	if deps.AdminActivityHandler != nil {
		deps.AdminActivityHandler.Register(protected("/activities"))
	}
}
