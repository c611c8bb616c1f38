package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-quiz-api/internal/utils"
)

const (
	// RoleAdmin is the only role allowed on /api/admin. Students never authenticate.
	RoleAdmin = "admin"

	roleLocal = "user_role"
	userLocal = "user_id"
)

// RequireRole rejects requests whose token role is not in roles. It must run after AdminProtected.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(roleLocal).(string)
		if _, ok := allowed[role]; !ok || role == "" {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// CurrentAdmin returns the token subject stored by AdminProtected.
func CurrentAdmin(c *fiber.Ctx) (string, bool) {
	subject, ok := c.Locals(userLocal).(string)
	return subject, ok && subject != ""
}
