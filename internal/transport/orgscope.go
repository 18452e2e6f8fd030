package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// OrgHeader carries the caller's organization id. A real deployment resolves
// this from the authenticated principal; the engine only needs the resolved
// scope, so the header stands in for that collaborator.
const OrgHeader = "X-Org-ID"

const orgLocalsKey = "orgId"

// RequireOrg rejects requests without an org scope and stores the resolved
// id in the request locals for handlers to read via OrgID.
func RequireOrg() fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := strings.TrimSpace(c.Get(OrgHeader))
		if orgID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "X-Org-ID header is required")
		}

		c.Locals(orgLocalsKey, orgID)
		return c.Next()
	}
}

// OrgID returns the org scope resolved by RequireOrg, or "" when the
// middleware did not run.
func OrgID(c *fiber.Ctx) string {
	if value, ok := c.Locals(orgLocalsKey).(string); ok {
		return value
	}
	return ""
}
