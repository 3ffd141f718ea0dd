package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"leadpilot/models"
)

func TestRunsFingerprintTracksStatusChanges(t *testing.T) {
	running := []models.WorkflowRun{
		{Model: gorm.Model{ID: 7}, Status: models.RunStatusRunning},
	}
	completed := []models.WorkflowRun{
		{Model: gorm.Model{ID: 7}, Status: models.RunStatusCompleted},
	}

	// Same run finishing must change the fingerprint even though no new
	// row appeared.
	assert.NotEqual(t, runsFingerprint(running), runsFingerprint(completed))

	assert.Equal(t, runsFingerprint(running), runsFingerprint(running))
	assert.Empty(t, runsFingerprint(nil))
}
