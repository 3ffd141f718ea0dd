package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
)

func createSequenceWithSteps(t *testing.T, engine *SequenceEngine, workspaceID uint, mode string, steps ...models.SequenceStep) *models.Sequence {
	t.Helper()
	sequence := &models.Sequence{
		WorkspaceID:    workspaceID,
		Name:           "Outreach",
		AutomationMode: mode,
		IsActive:       true,
	}
	require.NoError(t, engine.DB.Create(sequence).Error)
	for i := range steps {
		steps[i].SequenceID = sequence.ID
		steps[i].StepNumber = i
		require.NoError(t, engine.DB.Create(&steps[i]).Error)
	}
	return sequence
}

func enroll(t *testing.T, engine *SequenceEngine, sequence *models.Sequence, leadID, workspaceID uint) *models.SequenceEnrollment {
	t.Helper()
	enrollment := &models.SequenceEnrollment{
		SequenceID:  sequence.ID,
		LeadID:      leadID,
		WorkspaceID: workspaceID,
		Status:      models.EnrollmentStatusActive,
	}
	require.NoError(t, engine.DB.Create(enrollment).Error)
	return enrollment
}

func TestAutopilotSendsAndAdvancesAtomically(t *testing.T) {
	db, provider, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi {{first_name}}", Body: "Intro"},
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Bump", Body: "Nudge"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)

	require.NoError(t, engine.ProcessEnrollments())

	require.Len(t, provider.sent, 1)
	assert.Equal(t, "Hi Ada", provider.sent[0].Subject)

	var updated models.SequenceEnrollment
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 1, updated.CurrentStep)
	assert.Equal(t, 1, updated.EmailsSent)
	assert.Equal(t, models.EnrollmentStatusActive, updated.Status)

	// Second tick sends the second email and completes on the third.
	require.NoError(t, engine.ProcessEnrollments())
	require.NoError(t, engine.ProcessEnrollments())

	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	assert.Len(t, provider.sent, 2)
}

func TestManualModeRaisesOneTask(t *testing.T) {
	db, provider, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeManual,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi {{first_name}}", Body: "Intro"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)

	// Several ticks raise exactly one pending task.
	require.NoError(t, engine.ProcessEnrollments())
	require.NoError(t, engine.ProcessEnrollments())

	var tasks []models.Task
	require.NoError(t, db.Where("enrollment_id = ?", enrollment.ID).Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskTypeSendEmail, tasks[0].Type)
	assert.Equal(t, "Send email: Hi Ada", tasks[0].Title)
	assert.Empty(t, provider.sent)

	// The enrollment stays parked until the task completes.
	var updated models.SequenceEnrollment
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 0, updated.CurrentStep)

	require.NoError(t, engine.AdvanceAfterManualSend(enrollment.ID))
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 1, updated.CurrentStep)
	assert.Equal(t, 1, updated.EmailsSent)
}

func TestAssistedModeRaisesOneApproval(t *testing.T) {
	db, provider, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAssisted,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi {{first_name}}", Body: "Dear {{first_name}}"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)

	require.NoError(t, engine.ProcessEnrollments())
	require.NoError(t, engine.ProcessEnrollments())

	var approvals []models.ApprovalRequest
	require.NoError(t, db.Where("entity_type = ? AND entity_id = ?",
		models.ApprovalEntitySequenceEmail, enrollment.ID).Find(&approvals).Error)
	require.Len(t, approvals, 1)
	assert.Equal(t, models.ApprovalStatusPending, approvals[0].Status)
	assert.Equal(t, "Hi Ada", approvals[0].Data["subject"])
	assert.Empty(t, provider.sent)
}

func TestDelayStepGatesProgress(t *testing.T) {
	db, provider, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeDelay, DelayValue: 2, DelayUnit: "days"},
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Later", Body: "After the wait"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)

	// First tick arms the wait without advancing.
	require.NoError(t, engine.ProcessEnrollments())
	var updated models.SequenceEnrollment
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 0, updated.CurrentStep)
	require.NotNil(t, updated.NextRunAt)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), *updated.NextRunAt, time.Minute)

	// Ticks before the wake time are no-ops.
	require.NoError(t, engine.ProcessEnrollments())
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 0, updated.CurrentStep)
	assert.Empty(t, provider.sent)

	// Force the wake time into the past; the next tick moves on.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&updated).Update("next_run_at", past).Error)
	require.NoError(t, engine.ProcessEnrollments())

	// Re-read into a fresh struct: gorm leaves pointer fields stale when
	// scanning a NULL column into a reused destination.
	updated = models.SequenceEnrollment{}
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 1, updated.CurrentStep)
	assert.Nil(t, updated.NextRunAt)
}

func TestConditionStepPassAdvances(t *testing.T) {
	db, _, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeCondition, ConditionType: "replied"},
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Next", Body: "step"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)

	require.NoError(t, engine.ProcessEnrollments())

	var updated models.SequenceEnrollment
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 1, updated.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, updated.Status)
}

func TestInactiveSequencePausesEnrollments(t *testing.T) {
	db, provider, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi", Body: "there"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)
	require.NoError(t, db.Model(sequence).Update("is_active", false).Error)

	require.NoError(t, engine.ProcessEnrollments())

	var updated models.SequenceEnrollment
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, 0, updated.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, updated.Status)
	assert.Empty(t, provider.sent)
}

func TestSuppressedLeadStopsAutopilotEnrollment(t *testing.T) {
	db, provider, orchestrator, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "gone@example.com")
	createTestAccount(t, db, workspace.ID)
	require.NoError(t, orchestrator.Compliance.HandleBounce(workspace.ID, "gone@example.com"))

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi", Body: "there"},
	)
	enrollment := enroll(t, engine, sequence, lead.ID, workspace.ID)

	require.NoError(t, engine.ProcessEnrollments())

	var updated models.SequenceEnrollment
	require.NoError(t, db.First(&updated, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusStopped, updated.Status)
	assert.Empty(t, provider.sent)
}

func TestEnrollmentErrorDoesNotAbortBatch(t *testing.T) {
	db, provider, _, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	createTestAccount(t, db, workspace.ID)

	good1 := createTestLead(t, db, workspace.ID, "good1@example.com")
	flaky := createTestLead(t, db, workspace.ID, "flaky@example.com")
	good2 := createTestLead(t, db, workspace.ID, "good2@example.com")
	provider.failTo = "flaky@example.com"

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi", Body: "there"},
	)
	enroll(t, engine, sequence, good1.ID, workspace.ID)
	flakyEnrollment := enroll(t, engine, sequence, flaky.ID, workspace.ID)
	enroll(t, engine, sequence, good2.ID, workspace.ID)

	// The middle send errors; the tick still returns nil and the
	// neighbours advance.
	require.NoError(t, engine.ProcessEnrollments())

	require.Len(t, provider.sent, 2)
	recipients := []string{provider.sent[0].To, provider.sent[1].To}
	assert.Contains(t, recipients, "good1@example.com")
	assert.Contains(t, recipients, "good2@example.com")

	var advanced []models.SequenceEnrollment
	require.NoError(t, db.Where("lead_id IN ?", []uint{good1.ID, good2.ID}).Find(&advanced).Error)
	for _, e := range advanced {
		assert.Equal(t, 1, e.CurrentStep)
		assert.Equal(t, 1, e.EmailsSent)
	}

	// The failed enrollment stays active on the same step for the next tick.
	var stuck models.SequenceEnrollment
	require.NoError(t, db.First(&stuck, flakyEnrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusActive, stuck.Status)
	assert.Equal(t, 0, stuck.CurrentStep)
	assert.Equal(t, 0, stuck.EmailsSent)
}

func TestSuppressedEnrollmentDoesNotBlockOthers(t *testing.T) {
	db, provider, orchestrator, engine, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	createTestAccount(t, db, workspace.ID)

	good1 := createTestLead(t, db, workspace.ID, "good1@example.com")
	bad := createTestLead(t, db, workspace.ID, "bad@example.com")
	good2 := createTestLead(t, db, workspace.ID, "good2@example.com")
	require.NoError(t, orchestrator.Compliance.HandleBounce(workspace.ID, "bad@example.com"))

	sequence := createSequenceWithSteps(t, engine, workspace.ID, models.AutomationModeAutopilot,
		models.SequenceStep{StepType: models.StepTypeEmail, Subject: "Hi", Body: "there"},
	)
	enroll(t, engine, sequence, good1.ID, workspace.ID)
	enroll(t, engine, sequence, bad.ID, workspace.ID)
	enroll(t, engine, sequence, good2.ID, workspace.ID)

	require.NoError(t, engine.ProcessEnrollments())

	// Both healthy leads received mail despite the middle one being blocked.
	require.Len(t, provider.sent, 2)
	recipients := []string{provider.sent[0].To, provider.sent[1].To}
	assert.Contains(t, recipients, "good1@example.com")
	assert.Contains(t, recipients, "good2@example.com")
}
