package utils

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"leadpilot/models"
)

// DedupeService finds and merges duplicate leads within a workspace.
type DedupeService struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewDedupeService(db *gorm.DB, logger *log.Logger) *DedupeService {
	return &DedupeService{DB: db, Logger: logger}
}

// DuplicateMatch pairs a candidate duplicate with the confidence of the match.
type DuplicateMatch struct {
	Lead       models.Lead `json:"lead"`
	Confidence string      `json:"confidence"` // high, medium
	MatchedOn  string      `json:"matched_on"` // email, phone, name_company
}

// FindDuplicates returns existing leads that look like duplicates of the
// given one. Email and phone are high confidence; name plus company medium.
func (s *DedupeService) FindDuplicates(lead *models.Lead) ([]DuplicateMatch, error) {
	var matches []DuplicateMatch
	seen := map[uint]bool{lead.ID: true}

	appendMatches := func(leads []models.Lead, confidence, matchedOn string) {
		for _, l := range leads {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			matches = append(matches, DuplicateMatch{Lead: l, Confidence: confidence, MatchedOn: matchedOn})
		}
	}

	if lead.Email != "" {
		var byEmail []models.Lead
		err := s.DB.Where("workspace_id = ? AND email = ? AND id <> ?",
			lead.WorkspaceID, normalizeEmail(lead.Email), lead.ID).Find(&byEmail).Error
		if err != nil {
			return nil, err
		}
		appendMatches(byEmail, "high", "email")
	}

	if lead.Phone != "" {
		var byPhone []models.Lead
		err := s.DB.Where("workspace_id = ? AND phone = ? AND id <> ?",
			lead.WorkspaceID, lead.Phone, lead.ID).Find(&byPhone).Error
		if err != nil {
			return nil, err
		}
		appendMatches(byPhone, "high", "phone")
	}

	if lead.FirstName != "" && lead.LastName != "" && lead.Company != "" {
		var byName []models.Lead
		err := s.DB.Where(
			"workspace_id = ? AND LOWER(first_name) = LOWER(?) AND LOWER(last_name) = LOWER(?) AND LOWER(company) = LOWER(?) AND id <> ?",
			lead.WorkspaceID, lead.FirstName, lead.LastName, lead.Company, lead.ID,
		).Find(&byName).Error
		if err != nil {
			return nil, err
		}
		appendMatches(byName, "medium", "name_company")
	}

	return matches, nil
}

// MergeLeads folds the duplicate into the primary: related records move
// over, empty primary fields are filled from the duplicate, custom fields
// union with the primary winning conflicts, and the duplicate is deleted.
func (s *DedupeService) MergeLeads(workspaceID, primaryID, duplicateID uint) (*models.Lead, error) {
	if primaryID == duplicateID {
		return nil, fmt.Errorf("cannot merge a lead into itself")
	}

	var primary, duplicate models.Lead
	if err := s.DB.Where("id = ? AND workspace_id = ?", primaryID, workspaceID).First(&primary).Error; err != nil {
		return nil, ErrLeadNotFound
	}
	if err := s.DB.Where("id = ? AND workspace_id = ?", duplicateID, workspaceID).First(&duplicate).Error; err != nil {
		return nil, ErrLeadNotFound
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.Activity{}, &models.Task{}, &models.EmailMessage{}, &models.SequenceEnrollment{},
		} {
			if err := tx.Model(model).
				Where("lead_id = ?", duplicate.ID).
				Update("lead_id", primary.ID).Error; err != nil {
				return err
			}
		}

		mergeField(&primary.FirstName, duplicate.FirstName)
		mergeField(&primary.LastName, duplicate.LastName)
		mergeField(&primary.FullName, duplicate.FullName)
		mergeField(&primary.Company, duplicate.Company)
		mergeField(&primary.JobTitle, duplicate.JobTitle)
		mergeField(&primary.Phone, duplicate.Phone)
		mergeField(&primary.Website, duplicate.Website)
		if primary.StageID == nil {
			primary.StageID = duplicate.StageID
		}

		if len(duplicate.CustomFields) > 0 {
			if primary.CustomFields == nil {
				primary.CustomFields = map[string]interface{}{}
			}
			for k, v := range duplicate.CustomFields {
				if _, exists := primary.CustomFields[k]; !exists {
					primary.CustomFields[k] = v
				}
			}
		}

		primary.IsBounced = primary.IsBounced || duplicate.IsBounced
		primary.IsUnsubscribed = primary.IsUnsubscribed || duplicate.IsUnsubscribed

		if err := tx.Save(&primary).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.Activity{
			WorkspaceID: workspaceID,
			LeadID:      primary.ID,
			Type:        "merged",
			Title:       fmt.Sprintf("Merged duplicate lead %s", duplicate.Email),
			Metadata:    map[string]interface{}{"duplicate_id": duplicate.ID},
		}).Error; err != nil {
			return err
		}

		return tx.Delete(&duplicate).Error
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Printf("merged lead %d into %d (workspace %d)", duplicateID, primaryID, workspaceID)
	return &primary, nil
}

func mergeField(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}
