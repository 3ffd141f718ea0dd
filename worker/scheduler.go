package worker

import (
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"leadpilot/models"
	"leadpilot/utils"
)

// Scheduler owns the cron jobs: inbox syncs and daily counter resets.
type Scheduler struct {
	DB           *gorm.DB
	Orchestrator *utils.EmailOrchestrator
	Logger       *log.Logger

	cron *cron.Cron
}

func NewScheduler(db *gorm.DB, orchestrator *utils.EmailOrchestrator) *Scheduler {
	return &Scheduler{
		DB:           db,
		Orchestrator: orchestrator,
		Logger:       log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags),
		cron:         cron.New(),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("*/5 * * * *", s.syncInboxes); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * *", s.resetDailyCounters); err != nil {
		return err
	}

	s.cron.Start()
	s.Logger.Println("started: inbox sync every 5m, counter reset at midnight")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) syncInboxes() {
	var accounts []models.EmailAccount
	if err := s.DB.Where("is_active = ?", true).Find(&accounts).Error; err != nil {
		s.Logger.Printf("load accounts failed: %v", err)
		return
	}

	for _, account := range accounts {
		if err := s.Orchestrator.SyncInbox(account.ID); err != nil {
			s.Logger.Printf("sync failed for account %d: %v", account.ID, err)
			if dbErr := s.DB.Model(&models.EmailAccount{}).
				Where("id = ?", account.ID).
				Update("sync_error", err.Error()).Error; dbErr != nil {
				s.Logger.Printf("record sync error failed for account %d: %v", account.ID, dbErr)
			}
		}
	}
}

func (s *Scheduler) resetDailyCounters() {
	now := time.Now()
	result := s.DB.Model(&models.EmailAccount{}).
		Where("sent_today > ?", 0).
		Updates(map[string]interface{}{
			"sent_today":    0,
			"last_reset_at": now,
		})
	if result.Error != nil {
		s.Logger.Printf("daily counter reset failed: %v", result.Error)
		return
	}
	s.Logger.Printf("reset daily counters on %d accounts", result.RowsAffected)
}
