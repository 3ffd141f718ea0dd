package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StepTypeEmail     = "email"
	StepTypeDelay     = "delay"
	StepTypeCondition = "condition"

	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusStopped   = "stopped"
)

type Sequence struct {
	gorm.Model
	WorkspaceID    uint   `json:"workspace_id" gorm:"index;not null"`
	Name           string `json:"name" gorm:"not null"`
	Description    string `json:"description"`
	AutomationMode string `json:"automation_mode" gorm:"default:'assisted'"` // manual, assisted, autopilot
	IsActive       bool   `json:"is_active" gorm:"default:false"`

	Steps       []SequenceStep       `json:"steps,omitempty" gorm:"foreignKey:SequenceID"`
	Enrollments []SequenceEnrollment `json:"enrollments,omitempty" gorm:"foreignKey:SequenceID"`
}

type SequenceStep struct {
	gorm.Model
	SequenceID uint   `json:"sequence_id" gorm:"index;not null"`
	StepNumber int    `json:"step_number" gorm:"not null"`
	StepType   string `json:"step_type" gorm:"not null"` // email, delay, condition

	// email steps
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	// delay steps
	DelayValue int    `json:"delay_value,omitempty"`
	DelayUnit  string `json:"delay_unit,omitempty" gorm:"default:'days'"` // minutes, hours, days

	// condition steps
	ConditionType string `json:"condition_type,omitempty"` // replied, opened
}

// DelayDuration converts a delay step's value/unit pair into a duration.
// Unknown units fall back to days.
func (s *SequenceStep) DelayDuration() time.Duration {
	switch s.DelayUnit {
	case "minutes":
		return time.Duration(s.DelayValue) * time.Minute
	case "hours":
		return time.Duration(s.DelayValue) * time.Hour
	default:
		return time.Duration(s.DelayValue) * 24 * time.Hour
	}
}

type SequenceEnrollment struct {
	gorm.Model
	SequenceID  uint   `json:"sequence_id" gorm:"index:idx_enrollment_sequence_lead;not null"`
	LeadID      uint   `json:"lead_id" gorm:"index:idx_enrollment_sequence_lead;not null"`
	WorkspaceID uint   `json:"workspace_id" gorm:"index;not null"`
	Status      string `json:"status" gorm:"default:'active';index"` // active, completed, stopped
	CurrentStep int    `json:"current_step" gorm:"default:0"`
	EmailsSent  int    `json:"emails_sent" gorm:"default:0"`

	// NextRunAt gates delay steps: nil means no pending wait.
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`

	Sequence *Sequence `json:"sequence,omitempty" gorm:"foreignKey:SequenceID"`
	Lead     *Lead     `json:"lead,omitempty" gorm:"foreignKey:LeadID"`
}
