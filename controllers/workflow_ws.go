package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"leadpilot/config"
	"leadpilot/models"
)

// WebSocketUpgrade rejects non-websocket requests before the upgrade handler.
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// StreamRuns pushes a workspace's latest workflow runs over a websocket,
// polling every two seconds until the client disconnects.
func StreamRuns() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		workspaceID, ok := conn.Locals("workspaceID").(uint)
		if !ok {
			conn.WriteJSON(fiber.Map{"error": "workspace not resolved"})
			return
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastState string
		for range ticker.C {
			var runs []models.WorkflowRun
			err := config.DB.Where("workspace_id = ?", workspaceID).
				Order("id desc").Limit(10).Find(&runs).Error
			if err != nil {
				continue
			}

			// Key on ID and status so in-place transitions (running ->
			// completed) get pushed, not just new rows.
			state := runsFingerprint(runs)
			if state == lastState {
				// Nothing new; send a heartbeat so dead peers surface.
				if err := conn.WriteJSON(fiber.Map{"type": "heartbeat"}); err != nil {
					return
				}
				continue
			}
			lastState = state

			if err := conn.WriteJSON(fiber.Map{"type": "runs", "runs": runs}); err != nil {
				return
			}
		}
	})
}

func runsFingerprint(runs []models.WorkflowRun) string {
	var b strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&b, "%d:%s;", run.ID, run.Status)
	}
	return b.String()
}
