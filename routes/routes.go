package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"leadpilot/config"
	"leadpilot/controllers"
	"leadpilot/middleware"
)

// Setup registers every route. Auth and webhooks are public; everything
// else requires a token and a workspace context.
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", middleware.RateLimiter(cfg))

	auth := api.Group("/auth")
	auth.Post("/register", controllers.Register)
	auth.Post("/login", controllers.Login)
	auth.Post("/refresh", controllers.Refresh)
	auth.Get("/me", middleware.Protected(db), controllers.Me)

	// Provider callbacks and unsubscribe links carry no user session.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/unsubscribe", controllers.HandleUnsubscribe)
	webhooks.Post("/bounce", controllers.HandleBounce)

	ws := api.Group("/", middleware.Protected(db), middleware.RequireWorkspace(db))

	leads := ws.Group("/leads")
	leads.Post("/", controllers.CreateLead)
	leads.Get("/", controllers.GetLeads)
	leads.Get("/:id", controllers.GetLead)
	leads.Put("/:id/stage", controllers.UpdateLeadStage)
	leads.Get("/:id/duplicates", controllers.CheckDuplicates)
	leads.Post("/merge", controllers.MergeLeads)

	sequences := ws.Group("/sequences")
	sequences.Post("/", controllers.CreateSequence)
	sequences.Get("/", controllers.GetSequences)
	sequences.Get("/:id", controllers.GetSequence)
	sequences.Put("/:id/active", controllers.SetSequenceActive)
	sequences.Post("/:id/enroll", controllers.EnrollLead)

	enrollments := ws.Group("/enrollments")
	enrollments.Post("/:id/stop", controllers.StopEnrollment)

	workflows := ws.Group("/workflows")
	workflows.Post("/", controllers.CreateWorkflow)
	workflows.Get("/", controllers.GetWorkflows)
	workflows.Get("/:id/runs", controllers.GetWorkflowRuns)
	workflows.Post("/:id/execute", controllers.ExecuteWorkflow)
	workflows.Put("/:id/active", controllers.SetWorkflowActive)

	ws.Get("/runs/stream", controllers.WebSocketUpgrade, controllers.StreamRuns())

	approvals := ws.Group("/approvals")
	approvals.Get("/", controllers.GetApprovals)
	approvals.Post("/:id/approve", controllers.ApproveRequest)
	approvals.Post("/:id/reject", controllers.RejectRequest)

	tasks := ws.Group("/tasks")
	tasks.Get("/", controllers.GetTasks)
	tasks.Post("/:id/complete", controllers.CompleteTask)

	accounts := ws.Group("/email-accounts")
	accounts.Post("/", controllers.CreateEmailAccount)
	accounts.Get("/", controllers.GetEmailAccounts)
	accounts.Post("/:id/sync", controllers.SyncAccount)
}
