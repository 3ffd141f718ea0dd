package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AutomationModeManual    = "manual"
	AutomationModeAssisted  = "assisted"
	AutomationModeAutopilot = "autopilot"

	RunStatusRunning         = "running"
	RunStatusWaitingApproval = "waiting_approval"
	RunStatusCompleted       = "completed"
	RunStatusFailed          = "failed"

	TriggerLeadCreated  = "lead_created"
	TriggerStageChanged = "stage_changed"
	TriggerManual       = "manual"

	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorContains    = "contains"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorExists      = "exists"

	ActionSendEmail        = "send_email"
	ActionEnrollSequence   = "enroll_sequence"
	ActionCreateTask       = "create_task"
	ActionChangeStage      = "change_stage"
	ActionGenerateProposal = "generate_proposal"
	ActionGenerateInvoice  = "generate_invoice"
)

type Workflow struct {
	gorm.Model
	WorkspaceID    uint               `json:"workspace_id" gorm:"index;not null"`
	Name           string             `json:"name" gorm:"not null"`
	Description    string             `json:"description"`
	TriggerType    string             `json:"trigger_type" gorm:"not null;index"` // lead_created, stage_changed, manual
	TriggerConfig  datatypes.JSONMap  `json:"trigger_config,omitempty"`
	AutomationMode string             `json:"automation_mode" gorm:"default:'assisted'"` // manual, assisted, autopilot
	Definition     WorkflowDefinition `json:"definition" gorm:"serializer:json"`
	IsActive       bool               `json:"is_active" gorm:"default:false"`
	LastRunAt      *time.Time         `json:"last_run_at,omitempty"`
}

type WorkflowDefinition struct {
	Conditions []WorkflowCondition `json:"conditions,omitempty"`
	Actions    []WorkflowAction    `json:"actions"`
}

type WorkflowCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// WorkflowAction is a tagged union: Type selects which of the optional
// fields are meaningful.
type WorkflowAction struct {
	Type string `json:"type"`

	// send_email
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`

	// enroll_sequence
	SequenceID uint `json:"sequence_id,omitempty"`

	// create_task
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	TaskType    string `json:"task_type,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueInDays   int    `json:"due_in_days,omitempty"`

	// change_stage
	StageID uint `json:"stage_id,omitempty"`

	ContinueOnError bool                   `json:"continue_on_error,omitempty"`
	Extra           map[string]interface{} `json:"extra,omitempty"`
}

type WorkflowRun struct {
	gorm.Model
	WorkflowID   uint                `json:"workflow_id" gorm:"index;not null"`
	WorkspaceID  uint                `json:"workspace_id" gorm:"index;not null"`
	Status       string              `json:"status" gorm:"default:'running';index"` // running, waiting_approval, completed, failed
	TriggerData  datatypes.JSONMap   `json:"trigger_data,omitempty"`
	ExecutionLog []ExecutionLogEntry `json:"execution_log" gorm:"serializer:json"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type ExecutionLogEntry struct {
	Step      int         `json:"step"`
	Type      string      `json:"type"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
