package utils

import (
	"errors"
	"fmt"
)

var (
	ErrWorkflowNotFound   = errors.New("workflow not found or inactive")
	ErrRunNotFound        = errors.New("workflow run not found")
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrLeadNotFound       = errors.New("lead not found")
	ErrAccountNotFound    = errors.New("no active email account available")
	ErrDailyLimitExceeded = errors.New("daily sending limit exceeded")
	ErrAlreadyEnrolled    = errors.New("lead already has an active enrollment in this sequence")
)

// SuppressedError reports that compliance refused an outbound send.
type SuppressedError struct {
	Reason string
}

func (e *SuppressedError) Error() string {
	return fmt.Sprintf("email suppressed: %s", e.Reason)
}

// UnknownActionError reports a workflow action type the engine cannot dispatch.
type UnknownActionError struct {
	ActionType string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action type: %s", e.ActionType)
}
