package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDPropagatesToContext(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		if GetCorrelationID(c) != CorrelationIDFromContext(c.UserContext()) {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(GetCorrelationID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, "attempt-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "attempt-42", resp.Header.Get(HeaderCorrelationID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-7")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-7", resp.Header.Get(HeaderCorrelationID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, strings.Repeat("x", 200))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Len(t, resp.Header.Get(HeaderCorrelationID), 36)
}

func TestContextWithCorrelationIgnoresBlank(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), "  ")
	require.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelation(ctx, " abc ")
	require.Equal(t, "abc", CorrelationIDFromContext(ctx))
}

func TestLoggerWithCorrelationTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := LoggerWithCorrelation(base, "attempt-42")
	logger.Info().Msg("draft saved")
	require.Contains(t, buf.String(), `"correlation_id":"attempt-42"`)

	buf.Reset()
	logger = LoggerWithCorrelation(base, "")
	logger.Info().Msg("draft saved")
	require.NotContains(t, buf.String(), "correlation_id")
}

func TestObservabilityLogsApiRoutesOnly(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Observability(zerolog.New(&buf)))
	app.Get("/api/v1/sessions/:id/deadline-check", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/api/admin/sessions", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusBadRequest)
	})
	app.Get("/api/v1/assignments/:id/questions/stream", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/3/deadline-check", nil))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"surface":"student"`)
	require.Contains(t, buf.String(), `"route":"/api/v1/sessions/:id/deadline-check"`)

	buf.Reset()
	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/admin/sessions", nil))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.Contains(t, buf.String(), `"surface":"admin"`)

	buf.Reset()
	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/assignments/3/questions/stream", nil))
	require.NoError(t, err)
	require.Empty(t, buf.String())
}
