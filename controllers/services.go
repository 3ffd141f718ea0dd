package controllers

import (
	"log"
	"os"

	"gorm.io/gorm"

	"leadpilot/utils"
)

// Shared service instances used across handlers, wired once at startup.
var (
	complianceService *utils.ComplianceService
	orchestrator      *utils.EmailOrchestrator
	sequenceEngine    *utils.SequenceEngine
	workflowEngine    *utils.WorkflowEngine
	dedupeService     *utils.DedupeService
)

// InitServices builds the service graph the controllers depend on.
func InitServices(db *gorm.DB) {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags)

	complianceService = utils.NewComplianceService(db, logger)
	orchestrator = utils.NewEmailOrchestrator(db, complianceService, logger)
	sequenceEngine = utils.NewSequenceEngine(db, orchestrator, logger)
	workflowEngine = utils.NewWorkflowEngine(db, orchestrator, logger)
	dedupeService = utils.NewDedupeService(db, logger)
}

// Services exposes the wired engines for workers that share them.
func Services() (*utils.SequenceEngine, *utils.WorkflowEngine, *utils.EmailOrchestrator) {
	return sequenceEngine, workflowEngine, orchestrator
}
