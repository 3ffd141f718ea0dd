package utils

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"leadpilot/models"
)

// WorkflowEngine evaluates trigger conditions and executes workflow actions,
// pausing for approval when the workflow's automation mode requires it.
type WorkflowEngine struct {
	DB           *gorm.DB
	Orchestrator *EmailOrchestrator
	Logger       *log.Logger
}

func NewWorkflowEngine(db *gorm.DB, orchestrator *EmailOrchestrator, logger *log.Logger) *WorkflowEngine {
	return &WorkflowEngine{DB: db, Orchestrator: orchestrator, Logger: logger}
}

// approvalRequired lists the action types that pause an assisted workflow
// before executing.
var approvalRequired = map[string]bool{
	models.ActionSendEmail:        true,
	models.ActionChangeStage:      true,
	models.ActionGenerateProposal: true,
	models.ActionGenerateInvoice:  true,
}

// ExecuteWorkflow runs one workflow against trigger data, creating a run
// record that carries the execution log.
func (e *WorkflowEngine) ExecuteWorkflow(workflowID uint, triggerData map[string]interface{}) (*models.WorkflowRun, error) {
	var workflow models.Workflow
	if err := e.DB.First(&workflow, workflowID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	if !workflow.IsActive {
		return nil, ErrWorkflowNotFound
	}

	run := &models.WorkflowRun{
		WorkflowID:  workflow.ID,
		WorkspaceID: workflow.WorkspaceID,
		Status:      models.RunStatusRunning,
		TriggerData: triggerData,
		StartedAt:   time.Now(),
		ExecutionLog: []models.ExecutionLogEntry{{
			Step:      0,
			Type:      "trigger",
			Result:    workflow.TriggerType,
			Timestamp: time.Now(),
		}},
	}
	if err := e.DB.Create(run).Error; err != nil {
		return nil, err
	}

	if !e.evaluateConditions(workflow.Definition.Conditions, triggerData) {
		e.Logger.Printf("workflow %d run %d: conditions not met", workflow.ID, run.ID)
		if err := e.finishRun(run, models.RunStatusCompleted, ""); err != nil {
			return nil, err
		}
		return run, nil
	}

	if err := e.runActions(run, &workflow, 0, triggerData); err != nil {
		return run, err
	}
	return run, nil
}

// runActions executes the workflow's actions starting at startIndex. In
// assisted mode, execution pauses before the first gated action.
func (e *WorkflowEngine) runActions(run *models.WorkflowRun, workflow *models.Workflow, startIndex int, triggerData map[string]interface{}) error {
	actions := workflow.Definition.Actions

	for i := startIndex; i < len(actions); i++ {
		action := actions[i]

		if workflow.AutomationMode == models.AutomationModeAssisted && approvalRequired[action.Type] {
			if err := e.pauseForApproval(run, workflow, i, action, triggerData); err != nil {
				return err
			}
			return nil
		}

		result, err := e.executeAction(workflow, action, triggerData)
		entry := models.ExecutionLogEntry{
			Step:      i + 1,
			Type:      action.Type,
			Result:    result,
			Timestamp: time.Now(),
		}
		if err != nil {
			entry.Error = err.Error()
			run.ExecutionLog = append(run.ExecutionLog, entry)
			if action.ContinueOnError {
				if saveErr := e.DB.Save(run).Error; saveErr != nil {
					return saveErr
				}
				continue
			}
			if finishErr := e.finishRun(run, models.RunStatusFailed, err.Error()); finishErr != nil {
				return finishErr
			}
			return err
		}
		run.ExecutionLog = append(run.ExecutionLog, entry)
		if err := e.DB.Save(run).Error; err != nil {
			return err
		}
	}

	if err := e.finishRun(run, models.RunStatusCompleted, ""); err != nil {
		return err
	}
	return e.DB.Model(workflow).Update("last_run_at", time.Now()).Error
}

func (e *WorkflowEngine) pauseForApproval(run *models.WorkflowRun, workflow *models.Workflow, actionIndex int, action models.WorkflowAction, triggerData map[string]interface{}) error {
	request := models.ApprovalRequest{
		WorkspaceID: workflow.WorkspaceID,
		Type:        action.Type,
		EntityType:  models.ApprovalEntityWorkflowAction,
		EntityID:    run.ID,
		Data: map[string]interface{}{
			"run_id":       run.ID,
			"action_index": actionIndex,
			"action":       action,
			"trigger_data": map[string]interface{}(run.TriggerData),
		},
	}
	if err := e.DB.Create(&request).Error; err != nil {
		return err
	}

	run.Status = models.RunStatusWaitingApproval
	run.ExecutionLog = append(run.ExecutionLog, models.ExecutionLogEntry{
		Step:      actionIndex + 1,
		Type:      action.Type,
		Result:    "awaiting approval",
		Timestamp: time.Now(),
	})
	if err := e.DB.Save(run).Error; err != nil {
		return err
	}

	e.Logger.Printf("workflow %d run %d paused at action %d (%s) for approval",
		workflow.ID, run.ID, actionIndex, action.Type)
	return nil
}

// ResumeRun executes the approved action of a paused run, then continues
// with the remaining actions.
func (e *WorkflowEngine) ResumeRun(runID uint, actionIndex int) error {
	var run models.WorkflowRun
	if err := e.DB.First(&run, runID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrRunNotFound
		}
		return err
	}
	if run.Status != models.RunStatusWaitingApproval {
		return fmt.Errorf("run %d is %s, not waiting for approval", run.ID, run.Status)
	}

	var workflow models.Workflow
	if err := e.DB.First(&workflow, run.WorkflowID).Error; err != nil {
		return err
	}

	actions := workflow.Definition.Actions
	if actionIndex < 0 || actionIndex >= len(actions) {
		return fmt.Errorf("run %d has no action at index %d", run.ID, actionIndex)
	}

	run.Status = models.RunStatusRunning
	triggerData := map[string]interface{}(run.TriggerData)

	// The approved action executes without a second gate.
	action := actions[actionIndex]
	result, err := e.executeAction(&workflow, action, triggerData)
	entry := models.ExecutionLogEntry{
		Step:      actionIndex + 1,
		Type:      action.Type,
		Result:    result,
		Timestamp: time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
		run.ExecutionLog = append(run.ExecutionLog, entry)
		if !action.ContinueOnError {
			if finishErr := e.finishRun(&run, models.RunStatusFailed, err.Error()); finishErr != nil {
				return finishErr
			}
			return err
		}
	} else {
		run.ExecutionLog = append(run.ExecutionLog, entry)
	}
	if err := e.DB.Save(&run).Error; err != nil {
		return err
	}

	return e.runActions(&run, &workflow, actionIndex+1, triggerData)
}

// FailRun marks a paused run as failed, used when its approval is rejected.
func (e *WorkflowEngine) FailRun(runID uint, reason string) error {
	var run models.WorkflowRun
	if err := e.DB.First(&run, runID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrRunNotFound
		}
		return err
	}
	return e.finishRun(&run, models.RunStatusFailed, reason)
}

func (e *WorkflowEngine) finishRun(run *models.WorkflowRun, status, errMsg string) error {
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	run.Error = errMsg
	return e.DB.Save(run).Error
}

// evaluateConditions ANDs all conditions. An empty list passes; an unknown
// operator fails closed.
func (e *WorkflowEngine) evaluateConditions(conditions []models.WorkflowCondition, triggerData map[string]interface{}) bool {
	for _, cond := range conditions {
		if !e.evaluateCondition(cond, triggerData) {
			return false
		}
	}
	return true
}

func (e *WorkflowEngine) evaluateCondition(cond models.WorkflowCondition, triggerData map[string]interface{}) bool {
	fieldValue := GetNestedValue(triggerData, cond.Field)

	switch cond.Operator {
	case models.OperatorEquals:
		// A missing field equals nothing, not even an explicit null.
		if fieldValue == nil {
			return false
		}
		return looseEquals(fieldValue, cond.Value)
	case models.OperatorNotEquals:
		if fieldValue == nil {
			return true
		}
		return !looseEquals(fieldValue, cond.Value)
	case models.OperatorContains:
		return strings.Contains(stringify(fieldValue), stringify(cond.Value))
	case models.OperatorGreaterThan:
		a, aok := toFloat(fieldValue)
		b, bok := toFloat(cond.Value)
		return aok && bok && a > b
	case models.OperatorLessThan:
		a, aok := toFloat(fieldValue)
		b, bok := toFloat(cond.Value)
		return aok && bok && a < b
	case models.OperatorExists:
		return fieldValue != nil
	default:
		return false
	}
}

// looseEquals compares numerically when both sides are actual numbers,
// otherwise by string form. "5" and 5 are not equal here.
func looseEquals(a, b interface{}) bool {
	af, aok := toNumber(a)
	bf, bok := toNumber(b)
	if aok && bok {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

// toFloat additionally parses numeric strings, for ordering comparisons.
func toFloat(v interface{}) (float64, bool) {
	if f, ok := toNumber(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (e *WorkflowEngine) executeAction(workflow *models.Workflow, action models.WorkflowAction, triggerData map[string]interface{}) (interface{}, error) {
	switch action.Type {
	case models.ActionSendEmail:
		return e.actionSendEmail(workflow, action, triggerData)
	case models.ActionEnrollSequence:
		return e.actionEnrollSequence(workflow, action, triggerData)
	case models.ActionCreateTask:
		return e.actionCreateTask(workflow, action, triggerData)
	case models.ActionChangeStage:
		return e.actionChangeStage(workflow, action, triggerData)
	case models.ActionGenerateProposal:
		return e.actionGenerateProposal(workflow, action, triggerData)
	default:
		return nil, &UnknownActionError{ActionType: action.Type}
	}
}

func (e *WorkflowEngine) actionSendEmail(workflow *models.Workflow, action models.WorkflowAction, triggerData map[string]interface{}) (interface{}, error) {
	leadID, ok := toUint(triggerData["lead_id"])
	if !ok {
		return nil, fmt.Errorf("trigger data has no lead_id")
	}

	message, err := e.Orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workflow.WorkspaceID,
		LeadID:      leadID,
		Subject:     ReplaceTriggerVariables(action.Subject, triggerData),
		Body:        ReplaceTriggerVariables(action.Body, triggerData),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"message_id": message.MessageID}, nil
}

func (e *WorkflowEngine) actionEnrollSequence(workflow *models.Workflow, action models.WorkflowAction, triggerData map[string]interface{}) (interface{}, error) {
	leadID, ok := toUint(triggerData["lead_id"])
	if !ok {
		return nil, fmt.Errorf("trigger data has no lead_id")
	}

	var sequence models.Sequence
	err := e.DB.Where("id = ? AND workspace_id = ?", action.SequenceID, workflow.WorkspaceID).
		First(&sequence).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrSequenceNotFound
	}
	if err != nil {
		return nil, err
	}

	var count int64
	err = e.DB.Model(&models.SequenceEnrollment{}).
		Where("sequence_id = ? AND lead_id = ? AND status = ?",
			sequence.ID, leadID, models.EnrollmentStatusActive).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyEnrolled
	}

	enrollment := models.SequenceEnrollment{
		SequenceID:  sequence.ID,
		LeadID:      leadID,
		WorkspaceID: workflow.WorkspaceID,
		Status:      models.EnrollmentStatusActive,
	}
	if err := e.DB.Create(&enrollment).Error; err != nil {
		return nil, err
	}
	return map[string]interface{}{"enrollment_id": enrollment.ID}, nil
}

func (e *WorkflowEngine) actionCreateTask(workflow *models.Workflow, action models.WorkflowAction, triggerData map[string]interface{}) (interface{}, error) {
	task := models.Task{
		WorkspaceID: workflow.WorkspaceID,
		Title:       ReplaceTriggerVariables(action.Title, triggerData),
		Description: ReplaceTriggerVariables(action.Description, triggerData),
		Type:        action.TaskType,
		Priority:    action.Priority,
	}
	if task.Type == "" {
		task.Type = models.TaskTypeFollowUp
	}
	if task.Priority == "" {
		task.Priority = "normal"
	}
	if leadID, ok := toUint(triggerData["lead_id"]); ok {
		task.LeadID = &leadID
	}
	if action.DueInDays > 0 {
		due := time.Now().AddDate(0, 0, action.DueInDays)
		task.DueAt = &due
	}

	if err := e.DB.Create(&task).Error; err != nil {
		return nil, err
	}
	return map[string]interface{}{"task_id": task.ID}, nil
}

func (e *WorkflowEngine) actionChangeStage(workflow *models.Workflow, action models.WorkflowAction, triggerData map[string]interface{}) (interface{}, error) {
	leadID, ok := toUint(triggerData["lead_id"])
	if !ok {
		return nil, fmt.Errorf("trigger data has no lead_id")
	}

	var stage models.Stage
	err := e.DB.Where("id = ? AND workspace_id = ?", action.StageID, workflow.WorkspaceID).
		First(&stage).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("stage %d not found in workspace", action.StageID)
	}
	if err != nil {
		return nil, err
	}

	result := e.DB.Model(&models.Lead{}).
		Where("id = ? AND workspace_id = ?", leadID, workflow.WorkspaceID).
		Update("stage_id", stage.ID)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrLeadNotFound
	}
	return map[string]interface{}{"stage_id": stage.ID, "stage": stage.Name}, nil
}

func (e *WorkflowEngine) actionGenerateProposal(workflow *models.Workflow, action models.WorkflowAction, triggerData map[string]interface{}) (interface{}, error) {
	leadID, ok := toUint(triggerData["lead_id"])
	if !ok {
		return nil, fmt.Errorf("trigger data has no lead_id")
	}

	leadName := stringify(triggerData["lead_name"])
	if leadName == "" {
		leadName = stringify(triggerData["email"])
	}

	proposal := models.Proposal{
		WorkspaceID: workflow.WorkspaceID,
		LeadID:      leadID,
		Title:       "Proposal for " + leadName,
		Status:      "draft",
	}
	if action.Extra != nil {
		proposal.Content = action.Extra
	}

	if err := e.DB.Create(&proposal).Error; err != nil {
		return nil, err
	}
	return map[string]interface{}{"proposal_id": proposal.ID}, nil
}

func toUint(v interface{}) (uint, bool) {
	switch n := v.(type) {
	case uint:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint(n), true
	case string:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return uint(parsed), true
	default:
		return 0, false
	}
}
