package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-quiz-api/internal/config"
	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

const healthProbeTimeout = 2 * time.Second

// DependencyCheck probes one backing service. Optional dependencies only degrade the report.
type DependencyCheck struct {
	Name     string
	Optional bool
	Probe    func(ctx context.Context) error
}

// DependencyStatus is the probe result for one dependency.
type DependencyStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Service      string             `json:"service"`
	Environment  string             `json:"environment"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// HealthCheck reports "ok", "degraded" when an optional dependency fails,
// or "unavailable" with a 503 when the database or another required dependency fails.
func HealthCheck(cfg config.Config, checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), healthProbeTimeout)
		defer cancel()

		requiredDown := false
		for _, check := range checks {
			status := DependencyStatus{Name: check.Name, Status: "up"}
			if err := check.Probe(ctx); err != nil {
				status.Status = "down"
				status.Error = err.Error()
				if check.Optional {
					payload.Status = "degraded"
				} else {
					requiredDown = true
				}
			}
			payload.Dependencies = append(payload.Dependencies, status)
		}

		if requiredDown {
			payload.Status = "unavailable"
			return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, "service unavailable", payload)
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
