package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Workspace struct {
	gorm.Model
	Name    string `json:"name" gorm:"not null"`
	OwnerID uint   `json:"owner_id" gorm:"index"`

	Members []WorkspaceMember `json:"members,omitempty" gorm:"foreignKey:WorkspaceID"`
	Stages  []Stage           `json:"stages,omitempty" gorm:"foreignKey:WorkspaceID"`
}

type WorkspaceMember struct {
	gorm.Model
	WorkspaceID uint   `json:"workspace_id" gorm:"index:idx_member_workspace_user,unique"`
	UserID      uint   `json:"user_id" gorm:"index:idx_member_workspace_user,unique"`
	Role        string `json:"role" gorm:"default:'member'"` // owner, admin, member
}

// Stage is a pipeline stage leads move through (e.g. New, Contacted, Won).
type Stage struct {
	gorm.Model
	WorkspaceID uint   `json:"workspace_id" gorm:"index;not null"`
	Name        string `json:"name" gorm:"not null"`
	Position    int    `json:"position" gorm:"default:0"`
}

// Activity is the append-only timeline entry attached to a lead.
type Activity struct {
	gorm.Model
	WorkspaceID uint              `json:"workspace_id" gorm:"index;not null"`
	LeadID      uint              `json:"lead_id" gorm:"index;not null"`
	Type        string            `json:"type" gorm:"not null"` // email_sent, email_received, note, stage_changed, enrolled, merged
	Title       string            `json:"title"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
}

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"

	TaskTypeSendEmail = "send_email"
	TaskTypeFollowUp  = "follow_up"
)

type Task struct {
	gorm.Model
	WorkspaceID uint       `json:"workspace_id" gorm:"index;not null"`
	LeadID      *uint      `json:"lead_id,omitempty" gorm:"index"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description"`
	Type        string     `json:"type" gorm:"default:'follow_up'"` // follow_up, send_email, call, custom
	Priority    string     `json:"priority" gorm:"default:'normal'"`
	Status      string     `json:"status" gorm:"default:'pending';index"` // pending, completed
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Set when the task was raised by a sequence step awaiting manual send.
	EnrollmentID *uint `json:"enrollment_id,omitempty" gorm:"index"`
	StepNumber   *int  `json:"step_number,omitempty"`

	Metadata datatypes.JSONMap `json:"metadata,omitempty"`
}

type Proposal struct {
	gorm.Model
	WorkspaceID uint              `json:"workspace_id" gorm:"index;not null"`
	LeadID      uint              `json:"lead_id" gorm:"index;not null"`
	Title       string            `json:"title" gorm:"not null"`
	Status      string            `json:"status" gorm:"default:'draft'"` // draft, sent, accepted, declined
	Content     datatypes.JSONMap `json:"content,omitempty"`
	Subtotal    float64           `json:"subtotal"`
	Total       float64           `json:"total"`
}
