package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
)

func createWorkflow(t *testing.T, engine *WorkflowEngine, workspaceID uint, mode, triggerType string, def models.WorkflowDefinition) *models.Workflow {
	t.Helper()
	workflow := &models.Workflow{
		WorkspaceID:    workspaceID,
		Name:           "Test workflow",
		TriggerType:    triggerType,
		AutomationMode: mode,
		Definition:     def,
		IsActive:       true,
	}
	require.NoError(t, engine.DB.Create(workflow).Error)
	return workflow
}

func TestExecuteWorkflowAutopilotRunsAllActions(t *testing.T) {
	db, provider, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionCreateTask, Title: "Call {{lead_name}}"},
				{Type: models.ActionSendEmail, Subject: "Welcome {{lead_name}}", Body: "Hello!"},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{
		"lead_id":   lead.ID,
		"lead_name": "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)

	// trigger entry + two actions
	assert.Len(t, run.ExecutionLog, 3)

	var task models.Task
	require.NoError(t, db.Where("workspace_id = ?", workspace.ID).First(&task).Error)
	assert.Equal(t, "Call Ada", task.Title)

	require.Len(t, provider.sent, 1)
	assert.Equal(t, "Welcome Ada", provider.sent[0].Subject)

	var updatedWorkflow models.Workflow
	require.NoError(t, db.First(&updatedWorkflow, workflow.ID).Error)
	assert.NotNil(t, updatedWorkflow.LastRunAt)
}

func TestExecuteWorkflowConditionsGate(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Conditions: []models.WorkflowCondition{
				{Field: "source", Operator: models.OperatorEquals, Value: "webhook"},
			},
			Actions: []models.WorkflowAction{
				{Type: models.ActionCreateTask, Title: "Should not exist"},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{"source": "manual"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	var count int64
	db.Model(&models.Task{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestEvaluateCondition(t *testing.T) {
	_, _, _, _, engine := newTestStack(t)

	cases := []struct {
		name string
		cond models.WorkflowCondition
		data map[string]interface{}
		want bool
	}{
		{"equals numbers", models.WorkflowCondition{Field: "n", Operator: models.OperatorEquals, Value: 5}, map[string]interface{}{"n": 5.0}, true},
		{"equals string vs number", models.WorkflowCondition{Field: "n", Operator: models.OperatorEquals, Value: 5}, map[string]interface{}{"n": "5"}, false},
		{"equals missing field vs empty string", models.WorkflowCondition{Field: "missing", Operator: models.OperatorEquals, Value: ""}, map[string]interface{}{}, false},
		{"equals missing field vs nil", models.WorkflowCondition{Field: "missing", Operator: models.OperatorEquals, Value: nil}, map[string]interface{}{}, false},
		{"not equals", models.WorkflowCondition{Field: "s", Operator: models.OperatorNotEquals, Value: "a"}, map[string]interface{}{"s": "b"}, true},
		{"not equals missing field", models.WorkflowCondition{Field: "missing", Operator: models.OperatorNotEquals, Value: "a"}, map[string]interface{}{}, true},
		{"contains", models.WorkflowCondition{Field: "s", Operator: models.OperatorContains, Value: "Acme"}, map[string]interface{}{"s": "Acme Corp"}, true},
		{"contains is case-sensitive", models.WorkflowCondition{Field: "s", Operator: models.OperatorContains, Value: "ACME"}, map[string]interface{}{"s": "acme corp"}, false},
		{"greater than parses strings", models.WorkflowCondition{Field: "n", Operator: models.OperatorGreaterThan, Value: "10"}, map[string]interface{}{"n": "12.5"}, true},
		{"less than", models.WorkflowCondition{Field: "n", Operator: models.OperatorLessThan, Value: 10}, map[string]interface{}{"n": 12}, false},
		{"exists", models.WorkflowCondition{Field: "deal.amount", Operator: models.OperatorExists}, map[string]interface{}{"deal": map[string]interface{}{"amount": 1}}, true},
		{"exists missing", models.WorkflowCondition{Field: "deal.amount", Operator: models.OperatorExists}, map[string]interface{}{}, false},
		{"unknown operator fails closed", models.WorkflowCondition{Field: "s", Operator: "matches", Value: "a"}, map[string]interface{}{"s": "a"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, engine.evaluateCondition(tc.cond, tc.data))
		})
	}
}

func TestAssistedWorkflowPausesBeforeGatedAction(t *testing.T) {
	db, provider, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAssisted, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionCreateTask, Title: "Before"},
				{Type: models.ActionSendEmail, Subject: "Gated", Body: "Needs a human"},
				{Type: models.ActionCreateTask, Title: "After"},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{"lead_id": lead.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, run.Status)

	// The task before the gate ran, the email did not, the task after waits.
	var tasks []models.Task
	require.NoError(t, db.Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Before", tasks[0].Title)
	assert.Empty(t, provider.sent)

	var approval models.ApprovalRequest
	require.NoError(t, db.Where("entity_type = ?", models.ApprovalEntityWorkflowAction).First(&approval).Error)
	assert.Equal(t, models.ApprovalStatusPending, approval.Status)
	assert.Equal(t, float64(1), approval.Data["action_index"])

	// Approval resumes: gated action executes, remaining actions follow.
	require.NoError(t, engine.ResumeRun(run.ID, 1))

	var resumed models.WorkflowRun
	require.NoError(t, db.First(&resumed, run.ID).Error)
	assert.Equal(t, models.RunStatusCompleted, resumed.Status)
	require.Len(t, provider.sent, 1)

	require.NoError(t, db.Find(&tasks).Error)
	assert.Len(t, tasks, 2)
}

func TestRejectedRunFails(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAssisted, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionSendEmail, Subject: "Gated", Body: "x"},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{"lead_id": lead.ID})
	require.NoError(t, err)
	require.Equal(t, models.RunStatusWaitingApproval, run.Status)

	require.NoError(t, engine.FailRun(run.ID, "approval rejected"))

	var failed models.WorkflowRun
	require.NoError(t, db.First(&failed, run.ID).Error)
	assert.Equal(t, models.RunStatusFailed, failed.Status)
	assert.Equal(t, "approval rejected", failed.Error)
}

func TestActionFailureStopsRunUnlessContinueOnError(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")

	// enroll_sequence against a missing sequence fails the run.
	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionEnrollSequence, SequenceID: 999},
				{Type: models.ActionCreateTask, Title: "Unreached"},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{"lead_id": lead.ID})
	assert.ErrorIs(t, err, ErrSequenceNotFound)

	var stored models.WorkflowRun
	require.NoError(t, db.First(&stored, run.ID).Error)
	assert.Equal(t, models.RunStatusFailed, stored.Status)

	var count int64
	db.Model(&models.Task{}).Count(&count)
	assert.Equal(t, int64(0), count)

	// With continue_on_error the failure is logged and the run completes.
	tolerant := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionEnrollSequence, SequenceID: 999, ContinueOnError: true},
				{Type: models.ActionCreateTask, Title: "Reached"},
			},
		})

	run, err = engine.ExecuteWorkflow(tolerant.ID, map[string]interface{}{"lead_id": lead.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	db.Model(&models.Task{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUnknownActionTypeFailsRun(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerManual,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: "launch_rocket"},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{})
	var unknown *UnknownActionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "launch_rocket", unknown.ActionType)

	var stored models.WorkflowRun
	require.NoError(t, db.First(&stored, run.ID).Error)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
}

func TestEnrollSequenceActionRejectsDoubleEnrollment(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")

	sequence := models.Sequence{WorkspaceID: workspace.ID, Name: "Outreach", IsActive: true}
	require.NoError(t, db.Create(&sequence).Error)

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerLeadCreated,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionEnrollSequence, SequenceID: sequence.ID},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{"lead_id": lead.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	_, err = engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{"lead_id": lead.ID})
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestChangeStageActionValidatesWorkspace(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	other := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")

	foreignStage := models.Stage{WorkspaceID: other.ID, Name: "Foreign"}
	require.NoError(t, db.Create(&foreignStage).Error)
	ownStage := models.Stage{WorkspaceID: workspace.ID, Name: "Qualified"}
	require.NoError(t, db.Create(&ownStage).Error)

	bad := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerManual,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionChangeStage, StageID: foreignStage.ID},
			},
		})
	_, err := engine.ExecuteWorkflow(bad.ID, map[string]interface{}{"lead_id": lead.ID})
	require.Error(t, err)

	good := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerManual,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionChangeStage, StageID: ownStage.ID},
			},
		})
	run, err := engine.ExecuteWorkflow(good.ID, map[string]interface{}{"lead_id": lead.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	var updated models.Lead
	require.NoError(t, db.First(&updated, lead.ID).Error)
	require.NotNil(t, updated.StageID)
	assert.Equal(t, ownStage.ID, *updated.StageID)
}

func TestGenerateProposalAction(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerManual,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{
				{Type: models.ActionGenerateProposal},
			},
		})

	run, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{
		"lead_id":   lead.ID,
		"lead_name": "Ada Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	var proposal models.Proposal
	require.NoError(t, db.Where("lead_id = ?", lead.ID).First(&proposal).Error)
	assert.Equal(t, "Proposal for Ada Lovelace", proposal.Title)
	assert.Equal(t, "draft", proposal.Status)
}

func TestInactiveWorkflowIsNotFound(t *testing.T) {
	db, _, _, _, engine := newTestStack(t)
	workspace := createTestWorkspace(t, db)

	workflow := createWorkflow(t, engine, workspace.ID, models.AutomationModeAutopilot, models.TriggerManual,
		models.WorkflowDefinition{
			Actions: []models.WorkflowAction{{Type: models.ActionCreateTask, Title: "x"}},
		})
	require.NoError(t, db.Model(workflow).Update("is_active", false).Error)

	_, err := engine.ExecuteWorkflow(workflow.ID, map[string]interface{}{})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = engine.ExecuteWorkflow(99999, map[string]interface{}{})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
