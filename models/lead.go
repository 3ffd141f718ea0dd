package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Lead struct {
	gorm.Model
	WorkspaceID uint   `json:"workspace_id" gorm:"index;not null"`
	StageID     *uint  `json:"stage_id,omitempty" gorm:"index"`
	Email       string `json:"email" gorm:"index;not null"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	FullName    string `json:"full_name"`
	Company     string `json:"company"`
	JobTitle    string `json:"job_title"`
	Phone       string `json:"phone"`
	Website     string `json:"website"`
	Source      string `json:"source"` // manual, import, webhook, api

	IsBounced      bool `json:"is_bounced" gorm:"default:false"`
	IsUnsubscribed bool `json:"is_unsubscribed" gorm:"default:false"`

	FirstContactAt  *time.Time `json:"first_contact_at,omitempty"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`

	CustomFields datatypes.JSONMap `json:"custom_fields,omitempty"`

	Stage *Stage `json:"stage,omitempty" gorm:"foreignKey:StageID"`
}

const (
	SuppressionReasonUnsubscribed = "unsubscribed"
	SuppressionReasonBounced      = "bounced"
	SuppressionReasonManual       = "manual"
)

// SuppressionEntry blocks all outbound mail to an address within a workspace.
type SuppressionEntry struct {
	gorm.Model
	WorkspaceID uint   `json:"workspace_id" gorm:"index:idx_suppression_workspace_email,unique;not null"`
	Email       string `json:"email" gorm:"index:idx_suppression_workspace_email,unique;not null"`
	Reason      string `json:"reason" gorm:"not null"` // unsubscribed, bounced, manual
}
