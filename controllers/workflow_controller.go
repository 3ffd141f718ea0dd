package controllers

import (
	"github.com/gofiber/fiber/v2"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
)

type CreateWorkflowRequest struct {
	Name           string                    `json:"name" validate:"required"`
	Description    string                    `json:"description"`
	TriggerType    string                    `json:"trigger_type" validate:"required,oneof=lead_created stage_changed manual"`
	TriggerConfig  map[string]interface{}    `json:"trigger_config"`
	AutomationMode string                    `json:"automation_mode" validate:"omitempty,oneof=manual assisted autopilot"`
	Definition     models.WorkflowDefinition `json:"definition"`
}

func CreateWorkflow(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var req CreateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}
	if len(req.Definition.Actions) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "workflow needs at least one action"})
	}

	mode := req.AutomationMode
	if mode == "" {
		mode = models.AutomationModeAssisted
	}

	workflow := models.Workflow{
		WorkspaceID:    workspaceID,
		Name:           req.Name,
		Description:    req.Description,
		TriggerType:    req.TriggerType,
		TriggerConfig:  req.TriggerConfig,
		AutomationMode: mode,
		Definition:     req.Definition,
	}
	if err := config.DB.Create(&workflow).Error; err != nil {
		utils.ReportError(err, "workflow_create_failed", map[string]interface{}{"workspace_id": workspaceID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create workflow"})
	}
	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// GetWorkflows lists workflows with their run counts.
func GetWorkflows(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var workflows []models.Workflow
	err := config.DB.Where("workspace_id = ?", workspaceID).
		Order("created_at desc").Find(&workflows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load workflows"})
	}

	items := make([]fiber.Map, 0, len(workflows))
	for _, wf := range workflows {
		var runCount, pendingCount int64
		config.DB.Model(&models.WorkflowRun{}).Where("workflow_id = ?", wf.ID).Count(&runCount)
		config.DB.Model(&models.WorkflowRun{}).
			Where("workflow_id = ? AND status = ?", wf.ID, models.RunStatusWaitingApproval).
			Count(&pendingCount)

		items = append(items, fiber.Map{
			"workflow":          wf,
			"run_count":         runCount,
			"awaiting_approval": pendingCount,
		})
	}
	return c.JSON(fiber.Map{"items": items})
}

// GetWorkflowRuns lists a workflow's runs, newest first, paginated.
func GetWorkflowRuns(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	workflowID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workflow id"})
	}

	var workflow models.Workflow
	if err := config.DB.Where("id = ? AND workspace_id = ?", workflowID, workspaceID).
		First(&workflow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "workflow not found"})
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	config.DB.Model(&models.WorkflowRun{}).Where("workflow_id = ?", workflow.ID).Count(&total)

	var runs []models.WorkflowRun
	err = config.DB.Where("workflow_id = ?", workflow.ID).
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load runs"})
	}

	return c.JSON(utils.NewPaginatedResponse(runs, total, page, limit))
}

type ExecuteWorkflowRequest struct {
	TriggerData map[string]interface{} `json:"trigger_data"`
}

// ExecuteWorkflow runs a workflow synchronously with caller-supplied
// trigger data (the manual trigger path).
func ExecuteWorkflow(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	workflowID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workflow id"})
	}

	var workflow models.Workflow
	if err := config.DB.Where("id = ? AND workspace_id = ?", workflowID, workspaceID).
		First(&workflow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "workflow not found"})
	}

	var req ExecuteWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.TriggerData == nil {
		req.TriggerData = map[string]interface{}{}
	}

	run, err := workflowEngine.ExecuteWorkflow(workflow.ID, req.TriggerData)
	if err != nil {
		if err == utils.ErrWorkflowNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "workflow not found or inactive"})
		}
		// The run record carries the failure detail when one exists.
		if run != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(run)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(run)
}

// SetWorkflowActive toggles whether the workflow responds to triggers.
func SetWorkflowActive(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	workflowID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid workflow id"})
	}

	var req SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result := config.DB.Model(&models.Workflow{}).
		Where("id = ? AND workspace_id = ?", workflowID, workspaceID).
		Update("is_active", req.IsActive)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update workflow"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "workflow not found"})
	}
	return c.JSON(fiber.Map{"message": "workflow updated", "is_active": req.IsActive})
}
