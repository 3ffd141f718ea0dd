package worker

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"leadpilot/utils"
)

// TriggerQueueKey is the Redis list workflow trigger events are pushed to.
const TriggerQueueKey = "workflow:triggers"

var triggerQueue *redis.Client

// SetTriggerQueue registers the Redis client used to enqueue workflow
// triggers from request handlers. Nil disables event triggers.
func SetTriggerQueue(rdb *redis.Client) {
	triggerQueue = rdb
}

// TriggerQueue returns the registered trigger queue client, or nil.
func TriggerQueue() *redis.Client {
	return triggerQueue
}

// TriggerEvent is one queued request to run a workflow.
type TriggerEvent struct {
	WorkflowID  uint                   `json:"workflow_id"`
	TriggerData map[string]interface{} `json:"trigger_data"`
}

// EnqueueTrigger pushes a workflow trigger onto the queue.
func EnqueueTrigger(ctx context.Context, rdb *redis.Client, event TriggerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, TriggerQueueKey, payload).Err()
}

// WorkflowWorker consumes trigger events and executes workflows.
type WorkflowWorker struct {
	Redis  *redis.Client
	Engine *utils.WorkflowEngine
	Logger *log.Logger
}

func NewWorkflowWorker(rdb *redis.Client, engine *utils.WorkflowEngine) *WorkflowWorker {
	return &WorkflowWorker{
		Redis:  rdb,
		Engine: engine,
		Logger: log.New(os.Stdout, "[WORKFLOW-WORKER] ", log.LstdFlags),
	}
}

func (w *WorkflowWorker) Start(ctx context.Context) {
	w.Logger.Println("starting, consuming", TriggerQueueKey)

	for {
		select {
		case <-ctx.Done():
			w.Logger.Println("stopping")
			return
		default:
		}

		result, err := w.Redis.BLPop(ctx, 5*time.Second, TriggerQueueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Printf("queue read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var event TriggerEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			w.Logger.Printf("discarding malformed trigger event: %v", err)
			continue
		}

		run, err := w.Engine.ExecuteWorkflow(event.WorkflowID, event.TriggerData)
		if err != nil {
			utils.ReportError(err, "workflow_execution_failed", map[string]interface{}{
				"workflow_id": event.WorkflowID,
			})
			continue
		}
		w.Logger.Printf("workflow %d run %d finished with status %s",
			event.WorkflowID, run.ID, run.Status)
	}
}
