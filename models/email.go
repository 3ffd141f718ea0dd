package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderSMTP    = "smtp"

	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

type EmailAccount struct {
	gorm.Model
	WorkspaceID uint   `json:"workspace_id" gorm:"index;not null"`
	Email       string `json:"email" gorm:"not null"`
	FromName    string `json:"from_name"`
	Provider    string `json:"provider" gorm:"not null"` // gmail, outlook, smtp
	IsActive    bool   `json:"is_active" gorm:"default:true"`

	SMTPHost     string `json:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port,omitempty"`
	SMTPUsername string `json:"smtp_username,omitempty"`
	SMTPPassword string `json:"-"` // encrypted at rest
	IMAPHost     string `json:"imap_host,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPUsername string `json:"imap_username,omitempty"`
	IMAPPassword string `json:"-"` // encrypted at rest

	// OAuth accounts carry an encrypted refresh token instead of passwords.
	OAuthRefreshToken string `json:"-"`

	DailyLimit  int        `json:"daily_limit" gorm:"default:100"`
	SentToday   int        `json:"sent_today" gorm:"default:0"`
	LastResetAt *time.Time `json:"last_reset_at,omitempty"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	SyncError   string     `json:"sync_error,omitempty"`
}

// SMTPUser returns the username to authenticate SMTP with, falling back to
// the account address when no explicit username is configured.
func (a *EmailAccount) SMTPUser() string {
	if a.SMTPUsername != "" {
		return a.SMTPUsername
	}
	return a.Email
}

func (a *EmailAccount) IMAPUser() string {
	if a.IMAPUsername != "" {
		return a.IMAPUsername
	}
	return a.Email
}

// Sanitize strips credential fields before the account is serialized out.
func (a *EmailAccount) Sanitize() {
	a.SMTPPassword = ""
	a.IMAPPassword = ""
	a.OAuthRefreshToken = ""
}

type EmailMessage struct {
	gorm.Model
	WorkspaceID    uint       `json:"workspace_id" gorm:"index;not null"`
	LeadID         uint       `json:"lead_id" gorm:"index;not null"`
	EmailAccountID uint       `json:"email_account_id" gorm:"index"`
	Direction      string     `json:"direction" gorm:"not null"` // outbound, inbound
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	MessageID      string     `json:"message_id" gorm:"uniqueIndex"`
	ThreadID       string     `json:"thread_id,omitempty" gorm:"index"`
	InReplyTo      string     `json:"in_reply_to,omitempty"`
	Status         string     `json:"status" gorm:"default:'sent'"` // sent, received
	SentAt         *time.Time `json:"sent_at,omitempty"`
}
