package controllers

import (
	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"

	"leadpilot/utils"
)

type suppressionWebhook struct {
	WorkspaceID uint   `json:"workspace_id" validate:"required"`
	Email       string `json:"email" validate:"required"`
}

// HandleUnsubscribe is the public opt-out endpoint. It suppresses the
// address, flags matching leads, and stops their sequences.
func HandleUnsubscribe(c *fiber.Ctx) error {
	var req suppressionWebhook
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}
	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid email address"})
	}

	if err := complianceService.HandleUnsubscribe(req.WorkspaceID, req.Email); err != nil {
		utils.ReportError(err, "unsubscribe_failed", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process unsubscribe"})
	}
	return c.JSON(fiber.Map{"message": "unsubscribed"})
}

// HandleBounce records a delivery bounce reported by a provider webhook.
func HandleBounce(c *fiber.Ctx) error {
	var req suppressionWebhook
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	if err := complianceService.HandleBounce(req.WorkspaceID, req.Email); err != nil {
		utils.ReportError(err, "bounce_failed", map[string]interface{}{
			"workspace_id": req.WorkspaceID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process bounce"})
	}
	return c.JSON(fiber.Map{"message": "bounce recorded"})
}
