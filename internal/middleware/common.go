package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline.
type Config struct {
	Logger zerolog.Logger
	// AllowOrigins is a comma separated CORS list. Credentials (the admin cookie)
	// are only allowed when it names explicit origins.
	AllowOrigins string
	// AccessLog enables fiber's plain text access log in addition to the structured one.
	AccessLog bool
}

// Register attaches the middlewares shared by the student and admin surfaces.
func Register(app *fiber.App, cfg Config) {
	origins := strings.TrimSpace(cfg.AllowOrigins)
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(CorrelationID())
	app.Use(Observability(cfg.Logger.With().Str("component", "http").Logger()))
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${respHeader:" + HeaderCorrelationID + "}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "*",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + HeaderCorrelationID,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		ExposeHeaders:    HeaderCorrelationID + ", Content-Disposition",
	}))
}
