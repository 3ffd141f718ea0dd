package controllers

import (
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
	"leadpilot/worker"
)

type CreateLeadRequest struct {
	Email     string                 `json:"email" validate:"required"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	Company   string                 `json:"company"`
	JobTitle  string                 `json:"job_title"`
	Phone     string                 `json:"phone"`
	Website   string                 `json:"website"`
	Source    string                 `json:"source"`
	StageID   *uint                  `json:"stage_id"`
	Custom    map[string]interface{} `json:"custom_fields"`
}

// CreateLead stores the lead and enqueues lead_created workflow triggers.
func CreateLead(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var req CreateLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid email address"})
	}

	if req.StageID != nil {
		var stage models.Stage
		if err := config.DB.Where("id = ? AND workspace_id = ?", *req.StageID, workspaceID).
			First(&stage).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "stage not found in workspace"})
		}
	}

	source := req.Source
	if source == "" {
		source = "manual"
	}

	lead := models.Lead{
		WorkspaceID:  workspaceID,
		StageID:      req.StageID,
		Email:        email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		FullName:     strings.TrimSpace(req.FirstName + " " + req.LastName),
		Company:      req.Company,
		JobTitle:     req.JobTitle,
		Phone:        req.Phone,
		Website:      req.Website,
		Source:       source,
		CustomFields: req.Custom,
	}
	if err := config.DB.Create(&lead).Error; err != nil {
		utils.ReportError(err, "lead_create_failed", map[string]interface{}{"workspace_id": workspaceID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create lead"})
	}

	enqueueLeadTriggers(c, models.TriggerLeadCreated, &lead, "")

	return c.Status(fiber.StatusCreated).JSON(lead)
}

// enqueueLeadTriggers queues every active workflow matching the trigger type.
func enqueueLeadTriggers(c *fiber.Ctx, triggerType string, lead *models.Lead, stageName string) {
	if worker.TriggerQueue() == nil {
		return
	}

	var workflows []models.Workflow
	err := config.DB.Where("workspace_id = ? AND trigger_type = ? AND is_active = ?",
		lead.WorkspaceID, triggerType, true).Find(&workflows).Error
	if err != nil {
		utils.ReportError(err, "trigger_lookup_failed", map[string]interface{}{"lead_id": lead.ID})
		return
	}

	fullName := lead.FullName
	if fullName == "" {
		fullName = strings.TrimSpace(lead.FirstName + " " + lead.LastName)
	}

	triggerData := map[string]interface{}{
		"lead_id":   lead.ID,
		"lead_name": fullName,
		"email":     lead.Email,
		"company":   lead.Company,
		"source":    lead.Source,
	}
	if stageName != "" {
		triggerData["stage"] = stageName
	}

	for _, wf := range workflows {
		err := worker.EnqueueTrigger(c.Context(), worker.TriggerQueue(), worker.TriggerEvent{
			WorkflowID:  wf.ID,
			TriggerData: triggerData,
		})
		if err != nil {
			utils.ReportError(err, "trigger_enqueue_failed", map[string]interface{}{
				"workflow_id": wf.ID,
				"lead_id":     lead.ID,
			})
		}
	}
}

// GetLeads lists workspace leads with pagination and optional filters.
func GetLeads(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 25)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	q := config.DB.Model(&models.Lead{}).Where("workspace_id = ?", workspaceID)
	if stageID := c.QueryInt("stage_id", 0); stageID > 0 {
		q = q.Where("stage_id = ?", stageID)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(company) LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to count leads"})
	}

	var leads []models.Lead
	err := q.Preload("Stage").
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&leads).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load leads"})
	}

	return c.JSON(utils.NewPaginatedResponse(leads, total, page, limit))
}

func GetLead(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	leadID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid lead id"})
	}

	var lead models.Lead
	if err := config.DB.Preload("Stage").
		Where("id = ? AND workspace_id = ?", leadID, workspaceID).
		First(&lead).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lead not found"})
	}

	var activities []models.Activity
	config.DB.Where("lead_id = ?", lead.ID).Order("created_at desc").Limit(50).Find(&activities)

	return c.JSON(fiber.Map{
		"lead":       lead,
		"activities": activities,
	})
}

type UpdateStageRequest struct {
	StageID uint `json:"stage_id" validate:"required"`
}

// UpdateLeadStage moves a lead to a new stage and enqueues stage_changed
// workflow triggers with the stage name in the trigger data.
func UpdateLeadStage(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	leadID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid lead id"})
	}

	var req UpdateStageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	var lead models.Lead
	if err := config.DB.Where("id = ? AND workspace_id = ?", leadID, workspaceID).First(&lead).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lead not found"})
	}

	var stage models.Stage
	if err := config.DB.Where("id = ? AND workspace_id = ?", req.StageID, workspaceID).First(&stage).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "stage not found in workspace"})
	}

	if err := config.DB.Model(&lead).Update("stage_id", stage.ID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update stage"})
	}

	config.DB.Create(&models.Activity{
		WorkspaceID: workspaceID,
		LeadID:      lead.ID,
		Type:        "stage_changed",
		Title:       "Moved to " + stage.Name,
		Metadata:    map[string]interface{}{"stage_id": stage.ID},
	})

	enqueueLeadTriggers(c, models.TriggerStageChanged, &lead, stage.Name)

	return c.JSON(fiber.Map{"message": "stage updated", "stage": stage.Name})
}

// CheckDuplicates reports likely duplicates for one lead.
func CheckDuplicates(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	leadID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid lead id"})
	}

	var lead models.Lead
	if err := config.DB.Where("id = ? AND workspace_id = ?", leadID, workspaceID).First(&lead).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lead not found"})
	}

	matches, err := dedupeService.FindDuplicates(&lead)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "duplicate check failed"})
	}
	return c.JSON(fiber.Map{"duplicates": matches})
}

type MergeLeadsRequest struct {
	PrimaryID   uint `json:"primary_id" validate:"required"`
	DuplicateID uint `json:"duplicate_id" validate:"required"`
}

func MergeLeads(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var req MergeLeadsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	merged, err := dedupeService.MergeLeads(workspaceID, req.PrimaryID, req.DuplicateID)
	if err != nil {
		if err == utils.ErrLeadNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lead not found"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(merged)
}
