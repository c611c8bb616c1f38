package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-quiz-api/internal/observability"
)

const (
	surfaceStudent = "student"
	surfaceAdmin   = "admin"
)

// Observability records Prometheus metrics and a structured access line for API routes.
// Long-lived streams (question SSE, live monitor socket) are skipped.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		surface := surfaceOf(c.Path())
		if surface == "" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		observability.HTTPRequests().WithLabelValues(surface, method, route, statusLabel).Inc()
		observability.HTTPLatency().WithLabelValues(surface, method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(surface, method, route, statusLabel).Inc()
		}

		level := zerolog.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).
			Str("correlation_id", GetCorrelationID(c)).
			Str("surface", surface).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("latency", duration).
			Msg("request completed")

		return err
	}
}

func surfaceOf(path string) string {
	if strings.HasSuffix(path, "/stream") || strings.HasSuffix(path, "/ws") {
		return ""
	}
	switch {
	case strings.HasPrefix(path, "/api/admin"):
		return surfaceAdmin
	case strings.HasPrefix(path, "/api/v1"):
		return surfaceStudent
	default:
		return ""
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
		return route.Path
	}
	return "unmatched"
}
