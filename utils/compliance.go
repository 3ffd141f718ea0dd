package utils

import (
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadpilot/models"
)

// ComplianceService is the gate every outbound email passes through.
type ComplianceService struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewComplianceService(db *gorm.DB, logger *log.Logger) *ComplianceService {
	return &ComplianceService{DB: db, Logger: logger}
}

// CheckCanSend decides whether an address may be emailed within a workspace.
// Suppression entries take precedence over lead-level flags.
func (s *ComplianceService) CheckCanSend(workspaceID uint, email string) (bool, string, error) {
	email = normalizeEmail(email)

	var entry models.SuppressionEntry
	err := s.DB.Where("workspace_id = ? AND email = ?", workspaceID, email).First(&entry).Error
	if err == nil {
		return false, "suppressed: " + entry.Reason, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, "", err
	}

	var lead models.Lead
	err = s.DB.Where("workspace_id = ? AND email = ?", workspaceID, email).First(&lead).Error
	if err == gorm.ErrRecordNotFound {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}

	if lead.IsBounced {
		return false, "email bounced", nil
	}
	if lead.IsUnsubscribed {
		return false, "unsubscribed", nil
	}
	return true, "", nil
}

// HandleUnsubscribe records the opt-out, flags matching leads, and stops
// their active sequence enrollments, all in one transaction.
func (s *ComplianceService) HandleUnsubscribe(workspaceID uint, email string) error {
	email = normalizeEmail(email)

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := upsertSuppression(tx, workspaceID, email, models.SuppressionReasonUnsubscribed); err != nil {
			return err
		}

		var leads []models.Lead
		if err := tx.Where("workspace_id = ? AND email = ?", workspaceID, email).Find(&leads).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range leads {
			if err := tx.Model(&leads[i]).Update("is_unsubscribed", true).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.SequenceEnrollment{}).
				Where("lead_id = ? AND status = ?", leads[i].ID, models.EnrollmentStatusActive).
				Updates(map[string]interface{}{
					"status":     models.EnrollmentStatusStopped,
					"stopped_at": now,
				}).Error; err != nil {
				return err
			}
		}

		s.Logger.Printf("unsubscribe processed for %s (workspace %d, %d leads)", email, workspaceID, len(leads))
		return nil
	})
}

// HandleBounce records a hard bounce. Enrollments keep running; the send
// gate rejects the address on the next attempt.
func (s *ComplianceService) HandleBounce(workspaceID uint, email string) error {
	email = normalizeEmail(email)

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := upsertSuppression(tx, workspaceID, email, models.SuppressionReasonBounced); err != nil {
			return err
		}
		if err := tx.Model(&models.Lead{}).
			Where("workspace_id = ? AND email = ?", workspaceID, email).
			Update("is_bounced", true).Error; err != nil {
			return err
		}
		s.Logger.Printf("bounce recorded for %s (workspace %d)", email, workspaceID)
		return nil
	})
}

func upsertSuppression(tx *gorm.DB, workspaceID uint, email, reason string) error {
	entry := models.SuppressionEntry{
		WorkspaceID: workspaceID,
		Email:       email,
		Reason:      reason,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason"}),
	}).Create(&entry).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
