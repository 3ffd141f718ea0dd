package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
)

func TestSendEmailHappyPath(t *testing.T) {
	db, provider, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	account := createTestAccount(t, db, workspace.ID)

	message, err := orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      lead.ID,
		Subject:     "Hello",
		Body:        "Hi there",
	})
	require.NoError(t, err)
	require.Len(t, provider.sent, 1)
	assert.Equal(t, "ada@example.com", provider.sent[0].To)
	assert.Equal(t, models.DirectionOutbound, message.Direction)

	var updatedAccount models.EmailAccount
	require.NoError(t, db.First(&updatedAccount, account.ID).Error)
	assert.Equal(t, 1, updatedAccount.SentToday)

	var updatedLead models.Lead
	require.NoError(t, db.First(&updatedLead, lead.ID).Error)
	assert.NotNil(t, updatedLead.FirstContactAt)
	assert.NotNil(t, updatedLead.LastContactedAt)

	var activityCount int64
	db.Model(&models.Activity{}).Where("lead_id = ? AND type = ?", lead.ID, "email_sent").Count(&activityCount)
	assert.Equal(t, int64(1), activityCount)
}

func TestSendEmailFirstContactIsWriteOnce(t *testing.T) {
	db, _, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	createTestAccount(t, db, workspace.ID)

	first := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(lead).Update("first_contact_at", first).Error)

	_, err := orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      lead.ID,
		Subject:     "Again",
		Body:        "Following up",
	})
	require.NoError(t, err)

	var updated models.Lead
	require.NoError(t, db.First(&updated, lead.ID).Error)
	assert.WithinDuration(t, first, *updated.FirstContactAt, time.Second)
}

func TestSendEmailEnforcesDailyLimit(t *testing.T) {
	db, provider, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	account := createTestAccount(t, db, workspace.ID)
	require.NoError(t, db.Model(account).Updates(map[string]interface{}{
		"daily_limit": 1, "sent_today": 1,
	}).Error)

	_, err := orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      lead.ID,
		Subject:     "Over",
		Body:        "the limit",
	})
	assert.ErrorIs(t, err, ErrDailyLimitExceeded)
	assert.Empty(t, provider.sent)
}

func TestSendEmailBlocksSuppressed(t *testing.T) {
	db, provider, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "gone@example.com")
	createTestAccount(t, db, workspace.ID)
	require.NoError(t, orchestrator.Compliance.HandleUnsubscribe(workspace.ID, "gone@example.com"))

	_, err := orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      lead.ID,
		Subject:     "Nope",
		Body:        "blocked",
	})

	var suppressed *SuppressedError
	require.ErrorAs(t, err, &suppressed)
	assert.Empty(t, provider.sent)

	// Nothing was recorded for the refused send.
	var messageCount int64
	db.Model(&models.EmailMessage{}).Where("lead_id = ?", lead.ID).Count(&messageCount)
	assert.Equal(t, int64(0), messageCount)
}

func TestSendEmailProviderFailureRecordsNothing(t *testing.T) {
	db, provider, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	account := createTestAccount(t, db, workspace.ID)
	provider.sendErr = errors.New("smtp connection refused")

	_, err := orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      lead.ID,
		Subject:     "Fail",
		Body:        "please",
	})
	require.Error(t, err)

	var updatedAccount models.EmailAccount
	require.NoError(t, db.First(&updatedAccount, account.ID).Error)
	assert.Equal(t, 0, updatedAccount.SentToday)

	var messageCount int64
	db.Model(&models.EmailMessage{}).Where("lead_id = ?", lead.ID).Count(&messageCount)
	assert.Equal(t, int64(0), messageCount)
}

func TestSendEmailMissingLeadOrAccount(t *testing.T) {
	db, _, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)

	_, err := orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      999,
		Subject:     "x",
		Body:        "y",
	})
	assert.ErrorIs(t, err, ErrLeadNotFound)

	lead := createTestLead(t, db, workspace.ID, "ada@example.com")
	_, err = orchestrator.SendEmail(SendEmailParams{
		WorkspaceID: workspace.ID,
		LeadID:      lead.ID,
		Subject:     "x",
		Body:        "y",
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSyncInboxStoresRepliesAndStopsSequences(t *testing.T) {
	db, provider, orchestrator, _, _ := newTestStack(t)
	workspace := createTestWorkspace(t, db)
	lead := createTestLead(t, db, workspace.ID, "replier@example.com")
	account := createTestAccount(t, db, workspace.ID)

	sequence := models.Sequence{WorkspaceID: workspace.ID, Name: "Outreach", IsActive: true}
	require.NoError(t, db.Create(&sequence).Error)
	enrollment := models.SequenceEnrollment{
		SequenceID:  sequence.ID,
		LeadID:      lead.ID,
		WorkspaceID: workspace.ID,
		Status:      models.EnrollmentStatusActive,
	}
	require.NoError(t, db.Create(&enrollment).Error)

	provider.inbox = []InboundMessage{
		{
			MessageID:  "<reply-1@peer>",
			From:       "Replier@Example.com",
			Subject:    "Re: Hello",
			Body:       "Interested, tell me more",
			ReceivedAt: time.Now(),
		},
		{
			MessageID:  "<stranger@peer>",
			From:       "unknown@example.com",
			Subject:    "Spam",
			ReceivedAt: time.Now(),
		},
	}

	require.NoError(t, orchestrator.SyncInbox(account.ID))

	var messages []models.EmailMessage
	require.NoError(t, db.Where("direction = ?", models.DirectionInbound).Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, lead.ID, messages[0].LeadID)

	var updatedEnrollment models.SequenceEnrollment
	require.NoError(t, db.First(&updatedEnrollment, enrollment.ID).Error)
	assert.Equal(t, models.EnrollmentStatusStopped, updatedEnrollment.Status)

	// A second sync of the same inbox stores nothing new.
	require.NoError(t, orchestrator.SyncInbox(account.ID))
	var count int64
	db.Model(&models.EmailMessage{}).Where("direction = ?", models.DirectionInbound).Count(&count)
	assert.Equal(t, int64(1), count)

	var updatedAccount models.EmailAccount
	require.NoError(t, db.First(&updatedAccount, account.ID).Error)
	assert.NotNil(t, updatedAccount.LastSyncAt)
}
