package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
)

// GetApprovals lists a workspace's approval requests, pending first.
func GetApprovals(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	q := config.DB.Where("workspace_id = ?", workspaceID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var approvals []models.ApprovalRequest
	err := q.Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END, created_at desc").
		Limit(200).Find(&approvals).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load approvals"})
	}
	return c.JSON(fiber.Map{"items": approvals})
}

// ApproveRequest resolves a pending approval and resumes the paused
// automation: sequence emails go out, workflow runs continue.
func ApproveRequest(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	userID := middleware.UserID(c)

	request, ok := loadPendingApproval(c, workspaceID)
	if !ok {
		return nil
	}

	switch request.EntityType {
	case models.ApprovalEntitySequenceEmail:
		if err := approveSequenceEmail(request); err != nil {
			return approvalExecutionError(c, request, err)
		}
	case models.ApprovalEntityWorkflowAction:
		if err := approveWorkflowAction(request); err != nil {
			return approvalExecutionError(c, request, err)
		}
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "unknown approval entity type",
		})
	}

	if err := resolveApproval(request, models.ApprovalStatusApproved, userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve approval"})
	}

	utils.LogEvent("approval_granted", map[string]interface{}{
		"approval_id": request.ID,
		"entity_type": request.EntityType,
		"user_id":     userID,
	})
	return c.JSON(fiber.Map{"message": "approved"})
}

// RejectRequest resolves a pending approval negatively. A rejected workflow
// action fails its run; a rejected sequence email leaves the enrollment
// parked on the same step.
func RejectRequest(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	userID := middleware.UserID(c)

	request, ok := loadPendingApproval(c, workspaceID)
	if !ok {
		return nil
	}

	if request.EntityType == models.ApprovalEntityWorkflowAction {
		if runID, ok := dataUint(request.Data, "run_id"); ok {
			if err := workflowEngine.FailRun(runID, "approval rejected"); err != nil && err != utils.ErrRunNotFound {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fail run"})
			}
		}
	}

	if err := resolveApproval(request, models.ApprovalStatusRejected, userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve approval"})
	}

	utils.LogEvent("approval_rejected", map[string]interface{}{
		"approval_id": request.ID,
		"entity_type": request.EntityType,
		"user_id":     userID,
	})
	return c.JSON(fiber.Map{"message": "rejected"})
}

// loadPendingApproval resolves the :id route param to a pending approval.
// On failure the response has already been written and ok is false.
func loadPendingApproval(c *fiber.Ctx, workspaceID uint) (*models.ApprovalRequest, bool) {
	approvalID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid approval id"})
		return nil, false
	}

	var request models.ApprovalRequest
	err = config.DB.Where("id = ? AND workspace_id = ?", approvalID, workspaceID).First(&request).Error
	if err != nil {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "approval not found"})
		return nil, false
	}
	if request.Status != models.ApprovalStatusPending {
		c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "approval already resolved"})
		return nil, false
	}
	return &request, true
}

func approveSequenceEmail(request *models.ApprovalRequest) error {
	leadID, ok := dataUint(request.Data, "lead_id")
	if !ok {
		return errors.New("approval data missing lead_id")
	}
	enrollmentID, ok := dataUint(request.Data, "enrollment_id")
	if !ok {
		return errors.New("approval data missing enrollment_id")
	}
	subject, _ := request.Data["subject"].(string)
	body, _ := request.Data["body"].(string)

	_, err := orchestrator.SendEmail(utils.SendEmailParams{
		WorkspaceID: request.WorkspaceID,
		LeadID:      leadID,
		Subject:     subject,
		Body:        body,
	})
	if err != nil {
		return err
	}
	return sequenceEngine.AdvanceAfterManualSend(enrollmentID)
}

func approveWorkflowAction(request *models.ApprovalRequest) error {
	runID, ok := dataUint(request.Data, "run_id")
	if !ok {
		return errors.New("approval data missing run_id")
	}
	actionIndex := 0
	if idx, ok := dataUint(request.Data, "action_index"); ok {
		actionIndex = int(idx)
	}
	return workflowEngine.ResumeRun(runID, actionIndex)
}

func resolveApproval(request *models.ApprovalRequest, status string, userID uint) error {
	now := time.Now()
	return config.DB.Model(request).Updates(map[string]interface{}{
		"status":      status,
		"resolved_by": userID,
		"resolved_at": now,
	}).Error
}

func approvalExecutionError(c *fiber.Ctx, request *models.ApprovalRequest, err error) error {
	utils.ReportError(err, "approval_execution_failed", map[string]interface{}{
		"approval_id": request.ID,
		"entity_type": request.EntityType,
	})

	var suppressed *utils.SuppressedError
	if errors.As(err, &suppressed) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": suppressed.Error()})
	}
	if err == utils.ErrDailyLimitExceeded {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "approval execution failed"})
}

func dataUint(data map[string]interface{}, key string) (uint, bool) {
	switch v := data[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint:
		return v, true
	default:
		return 0, false
	}
}
