package utils

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultSuccessMessage = "success"
	defaultErrorMessage   = "error"
)

// APIResponse is the envelope shared by every JSON endpoint of the quiz API.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

func envelope(c *fiber.Ctx, status int, success bool, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if message == "" {
		message = defaultErrorMessage
		if success {
			message = defaultSuccessMessage
		}
	}

	return c.Status(status).JSON(APIResponse{Success: success, Data: data, Message: message})
}

// SendSuccess writes a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return envelope(c, fiber.StatusOK, true, message, data)
}

// SendSuccessWithStatus writes a success envelope with an explicit status, e.g. 201 for created sessions.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	return envelope(c, status, true, message, data)
}

// SendError writes a failure envelope without data.
func SendError(c *fiber.Ctx, status int, message string) error {
	return envelope(c, status, false, message, nil)
}

// SendErrorWithData writes a failure envelope that still carries a payload,
// used by the readiness probe to report which dependency is down.
func SendErrorWithData(c *fiber.Ctx, status int, message string, data interface{}) error {
	return envelope(c, status, false, message, data)
}

// SendAttachment streams a file download such as the submissions CSV export.
func SendAttachment(c *fiber.Ctx, contentType, filename string, body []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(body)
}
