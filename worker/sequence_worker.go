package worker

import (
	"context"
	"log"
	"os"
	"time"

	"leadpilot/utils"
)

// SequenceWorker ticks the sequence engine so active enrollments keep
// moving through their steps.
type SequenceWorker struct {
	Engine   *utils.SequenceEngine
	Interval time.Duration
	Logger   *log.Logger
}

func NewSequenceWorker(engine *utils.SequenceEngine) *SequenceWorker {
	return &SequenceWorker{
		Engine:   engine,
		Interval: time.Minute,
		Logger:   log.New(os.Stdout, "[SEQUENCE-WORKER] ", log.LstdFlags),
	}
}

func (w *SequenceWorker) Start(ctx context.Context) {
	w.Logger.Printf("starting, tick every %s", w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Println("stopping")
			return
		case <-ticker.C:
			if err := w.Engine.ProcessEnrollments(); err != nil {
				w.Logger.Printf("tick failed: %v", err)
			}
		}
	}
}
