package utils

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadpilot/models"
)

// EmailOrchestrator owns the full outbound path: account selection, daily
// limits, the compliance gate, the actual send, and all bookkeeping.
type EmailOrchestrator struct {
	DB         *gorm.DB
	Compliance *ComplianceService
	Logger     *log.Logger

	// NewProviderFunc builds the transport for an account. Overridable in tests.
	NewProviderFunc func(*models.EmailAccount) (EmailProvider, error)
}

func NewEmailOrchestrator(db *gorm.DB, compliance *ComplianceService, logger *log.Logger) *EmailOrchestrator {
	return &EmailOrchestrator{
		DB:              db,
		Compliance:      compliance,
		Logger:          logger,
		NewProviderFunc: NewProvider,
	}
}

type SendEmailParams struct {
	WorkspaceID    uint
	LeadID         uint
	Subject        string
	Body           string
	EmailAccountID *uint
}

// SendEmail sends one email to a lead and records the message, the account
// counter, the lead contact stamps, and a timeline activity.
func (o *EmailOrchestrator) SendEmail(params SendEmailParams) (*models.EmailMessage, error) {
	var lead models.Lead
	if err := o.DB.Where("id = ? AND workspace_id = ?", params.LeadID, params.WorkspaceID).First(&lead).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}

	account, err := o.pickAccount(params)
	if err != nil {
		return nil, err
	}
	if account.SentToday >= account.DailyLimit {
		return nil, ErrDailyLimitExceeded
	}

	allowed, reason, err := o.Compliance.CheckCanSend(params.WorkspaceID, lead.Email)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &SuppressedError{Reason: reason}
	}

	provider, err := o.NewProviderFunc(account)
	if err != nil {
		return nil, err
	}

	result, err := provider.Send(lead.Email, params.Subject, params.Body)
	if err != nil {
		ReportError(err, "email_send_failed", map[string]interface{}{
			"lead_id":    lead.ID,
			"account_id": account.ID,
		})
		return nil, err
	}

	now := time.Now()
	message := models.EmailMessage{
		WorkspaceID:    params.WorkspaceID,
		LeadID:         lead.ID,
		EmailAccountID: account.ID,
		Direction:      models.DirectionOutbound,
		Subject:        params.Subject,
		Body:           params.Body,
		MessageID:      result.MessageID,
		ThreadID:       result.ThreadID,
		Status:         "sent",
		SentAt:         &now,
	}

	err = o.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.EmailAccount{}).Where("id = ?", account.ID).
			Update("sent_today", gorm.Expr("sent_today + ?", 1)).Error; err != nil {
			return err
		}

		stamps := map[string]interface{}{
			"last_contacted_at": now,
			"last_activity_at":  now,
		}
		if lead.FirstContactAt == nil {
			stamps["first_contact_at"] = now
		}
		if err := tx.Model(&lead).Updates(stamps).Error; err != nil {
			return err
		}

		return tx.Create(&models.Activity{
			WorkspaceID: params.WorkspaceID,
			LeadID:      lead.ID,
			Type:        "email_sent",
			Title:       fmt.Sprintf("Email sent: %s", params.Subject),
			Metadata: map[string]interface{}{
				"message_id": result.MessageID,
				"account_id": account.ID,
			},
		}).Error
	})
	if err != nil {
		return nil, err
	}

	o.Logger.Printf("email sent to %s (lead %d, account %d)", lead.Email, lead.ID, account.ID)
	return &message, nil
}

func (o *EmailOrchestrator) pickAccount(params SendEmailParams) (*models.EmailAccount, error) {
	var account models.EmailAccount
	q := o.DB.Where("workspace_id = ? AND is_active = ?", params.WorkspaceID, true)
	if params.EmailAccountID != nil {
		q = q.Where("id = ?", *params.EmailAccountID)
	}
	if err := q.Order("created_at asc").First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// SyncInbox pulls recent inbound mail for one account, matches senders to
// leads, and stops sequences for leads that replied. Safe to run repeatedly.
func (o *EmailOrchestrator) SyncInbox(accountID uint) error {
	var account models.EmailAccount
	if err := o.DB.First(&account, accountID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrAccountNotFound
		}
		return err
	}

	provider, err := o.NewProviderFunc(&account)
	if err != nil {
		return err
	}

	inbound, err := provider.FetchRecent()
	if err != nil {
		return err
	}

	synced := 0
	for _, msg := range inbound {
		if msg.MessageID == "" {
			continue
		}

		var count int64
		if err := o.DB.Model(&models.EmailMessage{}).
			Where("message_id = ?", msg.MessageID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		var lead models.Lead
		err := o.DB.Where("workspace_id = ? AND email = ?", account.WorkspaceID, normalizeEmail(msg.From)).
			First(&lead).Error
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return err
		}

		msg := msg
		err = o.DB.Transaction(func(tx *gorm.DB) error {
			receivedAt := msg.ReceivedAt
			record := models.EmailMessage{
				WorkspaceID:    account.WorkspaceID,
				LeadID:         lead.ID,
				EmailAccountID: account.ID,
				Direction:      models.DirectionInbound,
				Subject:        msg.Subject,
				Body:           msg.Body,
				MessageID:      msg.MessageID,
				ThreadID:       msg.ThreadID,
				InReplyTo:      msg.InReplyTo,
				Status:         "received",
				SentAt:         &receivedAt,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			if err := tx.Model(&lead).Update("last_activity_at", time.Now()).Error; err != nil {
				return err
			}
			if err := tx.Create(&models.Activity{
				WorkspaceID: account.WorkspaceID,
				LeadID:      lead.ID,
				Type:        "email_received",
				Title:       fmt.Sprintf("Reply received: %s", msg.Subject),
				Metadata:    map[string]interface{}{"message_id": msg.MessageID},
			}).Error; err != nil {
				return err
			}

			// A reply ends the lead's active sequences.
			return tx.Model(&models.SequenceEnrollment{}).
				Where("lead_id = ? AND status = ?", lead.ID, models.EnrollmentStatusActive).
				Updates(map[string]interface{}{
					"status":     models.EnrollmentStatusStopped,
					"stopped_at": time.Now(),
				}).Error
		})
		if err != nil {
			return err
		}
		synced++
	}

	now := time.Now()
	if err := o.DB.Model(&account).Updates(map[string]interface{}{
		"last_sync_at": now,
		"sync_error":   "",
	}).Error; err != nil {
		return err
	}

	if synced > 0 {
		o.Logger.Printf("inbox sync for account %d stored %d new messages", account.ID, synced)
	}
	return nil
}
