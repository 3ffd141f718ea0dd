package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"leadpilot/config"
	"leadpilot/controllers"
	"leadpilot/middleware"
	"leadpilot/routes"
	"leadpilot/worker"
)

func main() {
	cfg := config.LoadConfig()
	config.ConnectDB(cfg)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		})
		if err != nil {
			log.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable, event triggers disabled: %v", err)
			rdb = nil
		}
	}
	worker.SetTriggerQueue(rdb)

	controllers.InitServices(config.DB)
	sequenceEngine, workflowEngine, orchestrator := controllers.Services()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go worker.NewSequenceWorker(sequenceEngine).Start(ctx)
	if rdb != nil {
		go worker.NewWorkflowWorker(rdb, workflowEngine).Start(ctx)
	}

	scheduler := worker.NewScheduler(config.DB, orchestrator)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "leadpilot",
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlog.New())
	app.Use(middleware.CORS())

	routes.Setup(app, config.DB, cfg)

	go func() {
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= 500 {
		sentry.CaptureException(err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
