package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
)

type SequenceStepRequest struct {
	StepType      string `json:"step_type" validate:"required,oneof=email delay condition"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	DelayValue    int    `json:"delay_value"`
	DelayUnit     string `json:"delay_unit"`
	ConditionType string `json:"condition_type"`
}

type CreateSequenceRequest struct {
	Name           string                `json:"name" validate:"required"`
	Description    string                `json:"description"`
	AutomationMode string                `json:"automation_mode" validate:"omitempty,oneof=manual assisted autopilot"`
	Steps          []SequenceStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// CreateSequence stores a sequence with densely numbered steps. New
// sequences start inactive.
func CreateSequence(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var req CreateSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	mode := req.AutomationMode
	if mode == "" {
		mode = models.AutomationModeAssisted
	}

	sequence := models.Sequence{
		WorkspaceID:    workspaceID,
		Name:           req.Name,
		Description:    req.Description,
		AutomationMode: mode,
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sequence).Error; err != nil {
			return err
		}
		for i, step := range req.Steps {
			delayUnit := step.DelayUnit
			if delayUnit == "" {
				delayUnit = "days"
			}
			if err := tx.Create(&models.SequenceStep{
				SequenceID:    sequence.ID,
				StepNumber:    i,
				StepType:      step.StepType,
				Subject:       step.Subject,
				Body:          step.Body,
				DelayValue:    step.DelayValue,
				DelayUnit:     delayUnit,
				ConditionType: step.ConditionType,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		utils.ReportError(err, "sequence_create_failed", map[string]interface{}{"workspace_id": workspaceID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create sequence"})
	}

	config.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number asc")
	}).First(&sequence, sequence.ID)

	return c.Status(fiber.StatusCreated).JSON(sequence)
}

// GetSequences lists sequences with step and active enrollment counts.
func GetSequences(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var sequences []models.Sequence
	err := config.DB.Where("workspace_id = ?", workspaceID).
		Order("created_at desc").Find(&sequences).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load sequences"})
	}

	items := make([]fiber.Map, 0, len(sequences))
	for _, seq := range sequences {
		var stepCount, activeCount int64
		config.DB.Model(&models.SequenceStep{}).Where("sequence_id = ?", seq.ID).Count(&stepCount)
		config.DB.Model(&models.SequenceEnrollment{}).
			Where("sequence_id = ? AND status = ?", seq.ID, models.EnrollmentStatusActive).
			Count(&activeCount)

		items = append(items, fiber.Map{
			"sequence":           seq,
			"step_count":         stepCount,
			"active_enrollments": activeCount,
		})
	}
	return c.JSON(fiber.Map{"items": items})
}

func GetSequence(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sequence id"})
	}

	var sequence models.Sequence
	err = config.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number asc")
	}).Where("id = ? AND workspace_id = ?", sequenceID, workspaceID).First(&sequence).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sequence not found"})
	}
	return c.JSON(sequence)
}

type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetSequenceActive toggles whether the engine progresses the sequence's
// enrollments.
func SetSequenceActive(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sequence id"})
	}

	var req SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result := config.DB.Model(&models.Sequence{}).
		Where("id = ? AND workspace_id = ?", sequenceID, workspaceID).
		Update("is_active", req.IsActive)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update sequence"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sequence not found"})
	}
	return c.JSON(fiber.Map{"message": "sequence updated", "is_active": req.IsActive})
}

type EnrollLeadRequest struct {
	LeadID uint `json:"lead_id" validate:"required"`
}

// EnrollLead puts a lead at step zero of a sequence. A lead can hold at
// most one active enrollment per sequence.
func EnrollLead(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	sequenceID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sequence id"})
	}

	var req EnrollLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}

	var sequence models.Sequence
	if err := config.DB.Where("id = ? AND workspace_id = ?", sequenceID, workspaceID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sequence not found"})
	}

	var lead models.Lead
	if err := config.DB.Where("id = ? AND workspace_id = ?", req.LeadID, workspaceID).
		First(&lead).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "lead not found"})
	}

	var count int64
	config.DB.Model(&models.SequenceEnrollment{}).
		Where("sequence_id = ? AND lead_id = ? AND status = ?",
			sequence.ID, lead.ID, models.EnrollmentStatusActive).
		Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "lead already enrolled in this sequence"})
	}

	enrollment := models.SequenceEnrollment{
		SequenceID:  sequence.ID,
		LeadID:      lead.ID,
		WorkspaceID: workspaceID,
		Status:      models.EnrollmentStatusActive,
	}
	if err := config.DB.Create(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to enroll lead"})
	}

	config.DB.Create(&models.Activity{
		WorkspaceID: workspaceID,
		LeadID:      lead.ID,
		Type:        "enrolled",
		Title:       "Enrolled in sequence " + sequence.Name,
		Metadata:    map[string]interface{}{"sequence_id": sequence.ID},
	})

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

// StopEnrollment removes a lead from a sequence.
func StopEnrollment(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	enrollmentID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid enrollment id"})
	}

	now := time.Now()
	result := config.DB.Model(&models.SequenceEnrollment{}).
		Where("id = ? AND workspace_id = ? AND status = ?",
			enrollmentID, workspaceID, models.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"status":     models.EnrollmentStatusStopped,
			"stopped_at": now,
		})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to stop enrollment"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "active enrollment not found"})
	}
	return c.JSON(fiber.Map{"message": "enrollment stopped"})
}
