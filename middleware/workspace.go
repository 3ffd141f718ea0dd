package middleware

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
)

// RequireWorkspace resolves the X-Workspace-ID header, verifies the
// authenticated user is a member, and stores the workspace ID and role
// in locals. Must run after Protected.
func RequireWorkspace(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("X-Workspace-ID")
		if header == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "X-Workspace-ID header is required",
			})
		}

		workspaceID, err := utils.ParseUint(header)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid workspace id",
			})
		}

		userID, ok := c.Locals("userID").(uint)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthenticated",
			})
		}

		var member models.WorkspaceMember
		err = db.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
			First(&member).Error
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "not a member of this workspace",
			})
		}

		c.Locals("workspaceID", workspaceID)
		c.Locals("workspaceRole", member.Role)
		return c.Next()
	}
}

// WorkspaceID pulls the resolved workspace out of locals.
func WorkspaceID(c *fiber.Ctx) uint {
	id, _ := c.Locals("workspaceID").(uint)
	return id
}

// UserID pulls the authenticated user out of locals.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}
