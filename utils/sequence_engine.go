package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadpilot/models"
)

// SequenceEngine advances active enrollments through their sequence steps.
// One ProcessEnrollments call is one tick; each enrollment makes at most
// one step of progress per tick.
type SequenceEngine struct {
	DB           *gorm.DB
	Orchestrator *EmailOrchestrator
	Logger       *log.Logger
}

func NewSequenceEngine(db *gorm.DB, orchestrator *EmailOrchestrator, logger *log.Logger) *SequenceEngine {
	return &SequenceEngine{DB: db, Orchestrator: orchestrator, Logger: logger}
}

// ProcessEnrollments runs one tick over every active enrollment. A failure
// on one enrollment is logged and never aborts the rest of the batch.
func (e *SequenceEngine) ProcessEnrollments() error {
	var enrollments []models.SequenceEnrollment
	err := e.DB.
		Preload("Lead").
		Preload("Sequence").
		Preload("Sequence.Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number asc")
		}).
		Where("status = ?", models.EnrollmentStatusActive).
		Find(&enrollments).Error
	if err != nil {
		return fmt.Errorf("load active enrollments: %w", err)
	}

	for i := range enrollments {
		if err := e.processEnrollment(&enrollments[i]); err != nil {
			ReportError(err, "sequence_step_failed", map[string]interface{}{
				"enrollment_id": enrollments[i].ID,
				"sequence_id":   enrollments[i].SequenceID,
				"step":          enrollments[i].CurrentStep,
			})
		}
	}
	return nil
}

func (e *SequenceEngine) processEnrollment(enrollment *models.SequenceEnrollment) error {
	if enrollment.Sequence == nil || enrollment.Lead == nil {
		return fmt.Errorf("enrollment %d has dangling references", enrollment.ID)
	}

	// Deactivated sequences pause their enrollments in place.
	if !enrollment.Sequence.IsActive {
		return nil
	}

	steps := enrollment.Sequence.Steps
	if enrollment.CurrentStep >= len(steps) {
		return e.completeEnrollment(enrollment)
	}

	step := steps[enrollment.CurrentStep]
	switch step.StepType {
	case models.StepTypeEmail:
		return e.sendSequenceEmail(enrollment, &step)
	case models.StepTypeDelay:
		return e.handleDelay(enrollment, &step)
	case models.StepTypeCondition:
		return e.handleCondition(enrollment, &step)
	default:
		return fmt.Errorf("unknown step type %q at step %d", step.StepType, step.StepNumber)
	}
}

func (e *SequenceEngine) sendSequenceEmail(enrollment *models.SequenceEnrollment, step *models.SequenceStep) error {
	lead := enrollment.Lead
	subject := ReplaceLeadVariables(step.Subject, lead)
	body := ReplaceLeadVariables(step.Body, lead)

	switch enrollment.Sequence.AutomationMode {
	case models.AutomationModeManual:
		return e.createSendTask(enrollment, step, subject, body)
	case models.AutomationModeAutopilot:
		return e.autoSend(enrollment, subject, body)
	default: // assisted
		return e.createApprovalRequest(enrollment, step, subject, body)
	}
}

// createSendTask raises a task for a human to send the email themselves.
// At most one pending task exists per (enrollment, step).
func (e *SequenceEngine) createSendTask(enrollment *models.SequenceEnrollment, step *models.SequenceStep, subject, body string) error {
	var count int64
	err := e.DB.Model(&models.Task{}).
		Where("enrollment_id = ? AND step_number = ? AND status = ?",
			enrollment.ID, step.StepNumber, models.TaskStatusPending).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return e.DB.Create(&models.Task{
		WorkspaceID:  enrollment.WorkspaceID,
		LeadID:       &enrollment.LeadID,
		Title:        fmt.Sprintf("Send email: %s", subject),
		Description:  body,
		Type:         models.TaskTypeSendEmail,
		Priority:     "high",
		EnrollmentID: &enrollment.ID,
		StepNumber:   Pointer(step.StepNumber),
		Metadata: map[string]interface{}{
			"subject":     subject,
			"sequence_id": enrollment.SequenceID,
		},
	}).Error
}

// createApprovalRequest parks the email for review. At most one pending
// request exists per enrollment step.
func (e *SequenceEngine) createApprovalRequest(enrollment *models.SequenceEnrollment, step *models.SequenceStep, subject, body string) error {
	var count int64
	err := e.DB.Model(&models.ApprovalRequest{}).
		Where("entity_type = ? AND entity_id = ? AND status = ?",
			models.ApprovalEntitySequenceEmail, enrollment.ID, models.ApprovalStatusPending).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return e.DB.Create(&models.ApprovalRequest{
		WorkspaceID: enrollment.WorkspaceID,
		Type:        "email",
		EntityType:  models.ApprovalEntitySequenceEmail,
		EntityID:    enrollment.ID,
		Data: map[string]interface{}{
			"lead_id":       enrollment.LeadID,
			"subject":       subject,
			"body":          body,
			"enrollment_id": enrollment.ID,
			"step_number":   step.StepNumber,
		},
	}).Error
}

func (e *SequenceEngine) autoSend(enrollment *models.SequenceEnrollment, subject, body string) error {
	_, err := e.Orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: enrollment.WorkspaceID,
		LeadID:      enrollment.LeadID,
		Subject:     subject,
		Body:        body,
	})
	if err != nil {
		var suppressed *SuppressedError
		if errors.As(err, &suppressed) {
			// Suppressed leads can never receive this step; end the enrollment.
			now := time.Now()
			return e.DB.Model(enrollment).Updates(map[string]interface{}{
				"status":     models.EnrollmentStatusStopped,
				"stopped_at": now,
			}).Error
		}
		return err
	}

	return e.advanceAfterSend(e.DB, enrollment.ID)
}

// advanceAfterSend bumps step and sent counters together so a crash between
// the two cannot desynchronize them.
func (e *SequenceEngine) advanceAfterSend(db *gorm.DB, enrollmentID uint) error {
	return db.Model(&models.SequenceEnrollment{}).
		Where("id = ?", enrollmentID).
		Updates(map[string]interface{}{
			"current_step": gorm.Expr("current_step + ?", 1),
			"emails_sent":  gorm.Expr("emails_sent + ?", 1),
			"next_run_at":  nil,
		}).Error
}

// AdvanceAfterManualSend is called when a user completes a send task or an
// approved email goes out, moving the enrollment past its email step.
func (e *SequenceEngine) AdvanceAfterManualSend(enrollmentID uint) error {
	return e.advanceAfterSend(e.DB, enrollmentID)
}

func (e *SequenceEngine) handleDelay(enrollment *models.SequenceEnrollment, step *models.SequenceStep) error {
	now := time.Now()

	if enrollment.NextRunAt == nil {
		wake := now.Add(step.DelayDuration())
		return e.DB.Model(enrollment).Update("next_run_at", wake).Error
	}

	if now.Before(*enrollment.NextRunAt) {
		return nil
	}

	return e.DB.Model(enrollment).Updates(map[string]interface{}{
		"current_step": gorm.Expr("current_step + ?", 1),
		"next_run_at":  nil,
	}).Error
}

func (e *SequenceEngine) handleCondition(enrollment *models.SequenceEnrollment, step *models.SequenceStep) error {
	passed, err := e.evaluateStepCondition(enrollment, step)
	if err != nil {
		return err
	}
	if !passed {
		return e.completeEnrollment(enrollment)
	}
	return e.DB.Model(enrollment).
		Update("current_step", gorm.Expr("current_step + ?", 1)).Error
}

// evaluateStepCondition decides whether the enrollment continues past a
// condition step.
// TODO: wire replied/opened checks to EmailMessage threads once open
// tracking lands; until then conditions always pass.
func (e *SequenceEngine) evaluateStepCondition(enrollment *models.SequenceEnrollment, step *models.SequenceStep) (bool, error) {
	return true, nil
}

func (e *SequenceEngine) completeEnrollment(enrollment *models.SequenceEnrollment) error {
	now := time.Now()
	err := e.DB.Model(enrollment).Updates(map[string]interface{}{
		"status":       models.EnrollmentStatusCompleted,
		"completed_at": now,
	}).Error
	if err != nil {
		return err
	}
	e.Logger.Printf("enrollment %d completed (sequence %d, lead %d)",
		enrollment.ID, enrollment.SequenceID, enrollment.LeadID)
	return nil
}
