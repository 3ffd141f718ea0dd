package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
)

// GetTasks lists workspace tasks, pending first, due-soonest on top.
func GetTasks(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	q := config.DB.Where("workspace_id = ?", workspaceID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if taskType := c.Query("type"); taskType != "" {
		q = q.Where("type = ?", taskType)
	}

	var tasks []models.Task
	err := q.Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END, due_at asc NULLS LAST, created_at desc").
		Limit(200).Find(&tasks).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load tasks"})
	}
	return c.JSON(fiber.Map{"items": tasks})
}

// CompleteTask marks a task done. Completing a sequence send task advances
// the enrollment past its email step.
func CompleteTask(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	taskID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid task id"})
	}

	var task models.Task
	if err := config.DB.Where("id = ? AND workspace_id = ?", taskID, workspaceID).First(&task).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
	}
	if task.Status == models.TaskStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "task already completed"})
	}

	now := time.Now()
	if err := config.DB.Model(&task).Updates(map[string]interface{}{
		"status":       models.TaskStatusCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to complete task"})
	}

	if task.EnrollmentID != nil && task.Type == models.TaskTypeSendEmail {
		if err := sequenceEngine.AdvanceAfterManualSend(*task.EnrollmentID); err != nil {
			utils.ReportError(err, "enrollment_advance_failed", map[string]interface{}{
				"task_id":       task.ID,
				"enrollment_id": *task.EnrollmentID,
			})
		}
	}

	return c.JSON(fiber.Map{"message": "task completed"})
}
