package utils

import (
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadpilot/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.WorkspaceMember{},
		&models.Stage{},
		&models.Lead{},
		&models.SuppressionEntry{},
		&models.EmailAccount{},
		&models.EmailMessage{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.SequenceEnrollment{},
		&models.Workflow{},
		&models.WorkflowRun{},
		&models.ApprovalRequest{},
		&models.Task{},
		&models.Activity{},
		&models.Proposal{},
	)
	require.NoError(t, err)
	return db
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeProvider records sends and replays canned inbox messages. sendErr
// fails every send; failTo fails sends to one recipient.
type fakeProvider struct {
	sent    []fakeSent
	inbox   []InboundMessage
	sendErr error
	failTo  string
}

type fakeSent struct {
	To      string
	Subject string
	Body    string
}

func (p *fakeProvider) Send(to, subject, body string) (*SendResult, error) {
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	if p.failTo != "" && to == p.failTo {
		return nil, fmt.Errorf("mailbox unavailable: %s", to)
	}
	p.sent = append(p.sent, fakeSent{To: to, Subject: subject, Body: body})
	id := fmt.Sprintf("<%s@test>", uuid.NewString())
	return &SendResult{MessageID: id, ThreadID: id}, nil
}

func (p *fakeProvider) FetchRecent() ([]InboundMessage, error) {
	return p.inbox, nil
}

// newTestStack wires a compliance service, orchestrator, and both engines
// against one test database and one fake provider.
func newTestStack(t *testing.T) (*gorm.DB, *fakeProvider, *EmailOrchestrator, *SequenceEngine, *WorkflowEngine) {
	t.Helper()

	db := setupTestDB(t)
	provider := &fakeProvider{}

	compliance := NewComplianceService(db, quietLogger())
	orchestrator := NewEmailOrchestrator(db, compliance, quietLogger())
	orchestrator.NewProviderFunc = func(*models.EmailAccount) (EmailProvider, error) {
		return provider, nil
	}

	sequenceEngine := NewSequenceEngine(db, orchestrator, quietLogger())
	workflowEngine := NewWorkflowEngine(db, orchestrator, quietLogger())
	return db, provider, orchestrator, sequenceEngine, workflowEngine
}

func createTestWorkspace(t *testing.T, db *gorm.DB) *models.Workspace {
	t.Helper()
	workspace := &models.Workspace{Name: "Test Workspace", OwnerID: 1}
	require.NoError(t, db.Create(workspace).Error)
	return workspace
}

func createTestLead(t *testing.T, db *gorm.DB, workspaceID uint, email string) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		WorkspaceID: workspaceID,
		Email:       email,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Company:     "Analytical Engines",
	}
	require.NoError(t, db.Create(lead).Error)
	return lead
}

func createTestAccount(t *testing.T, db *gorm.DB, workspaceID uint) *models.EmailAccount {
	t.Helper()
	account := &models.EmailAccount{
		WorkspaceID: workspaceID,
		Email:       "sender@example.com",
		Provider:    models.ProviderSMTP,
		IsActive:    true,
		DailyLimit:  100,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}
