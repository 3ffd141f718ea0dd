package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"

	ApprovalEntitySequenceEmail  = "sequence_email"
	ApprovalEntityWorkflowAction = "workflow_action"
)

// ApprovalRequest is a paused automation step awaiting a human decision.
type ApprovalRequest struct {
	gorm.Model
	WorkspaceID uint              `json:"workspace_id" gorm:"index;not null"`
	Type        string            `json:"type"`
	EntityType  string            `json:"entity_type" gorm:"not null;index"` // sequence_email, workflow_action
	EntityID    uint              `json:"entity_id" gorm:"index"`
	RequestedBy string            `json:"requested_by" gorm:"default:'system'"`
	Status      string            `json:"status" gorm:"default:'pending';index"` // pending, approved, rejected
	Data        datatypes.JSONMap `json:"data,omitempty"`
	ResolvedBy  *uint             `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}
