package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/handler"
	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/middleware"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/internal/queue"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/internal/worker"
	"github.com/reelforge/api/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// Database
	st, err := store.NewGormStore(cfg.MySQL.DSN)
	if err != nil {
		zlog.Fatal("Failed to connect to MySQL", "err", err)
	}

	// Redis + Asynq
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()
	enq := queue.NewAsynqEnqueuer(asynqClient)

	validate := validator.New()

	hub := ws.NewHub(zlog)
	go hub.Run()

	// Generation provider (falls back to mock when unconfigured)
	var provider client.GenerationProvider
	httpProvider := client.NewHTTPProvider(&cfg.Provider)
	if httpProvider.IsConfigured() {
		provider = httpProvider
	} else {
		zlog.Warn("Generation provider not configured, using mock")
		provider = client.NewMockProvider()
	}

	// R2 storage (optional - provider URLs are kept as-is without it)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Storage(&cfg.R2)
		if err != nil {
			zlog.Warn("R2 client not initialized", "err", err)
		} else {
			storage = r2Client
		}
	} else {
		zlog.Info("R2 storage not configured, asset URLs will point at the provider")
	}

	// Core services
	graph := pipeline.DefaultGraph()
	machine := pipeline.NewMachine(graph, st, hub, zlog)
	costs := service.NewCostTable(&cfg.Costs)
	ledger := service.NewLedger(st, zlog)
	lifecycle := service.NewLifecycle(
		st, provider, storage, ledger, enq, hub, costs,
		time.Duration(cfg.Pipeline.PollIntervalSec)*time.Second,
		time.Duration(cfg.Pipeline.JobTimeoutSec)*time.Second,
		zlog,
	)
	orchestrator := service.NewOrchestrator(machine, lifecycle, st, provider, ledger, enq, costs, zlog)
	analyzer := service.NewImpactAnalyzer(graph, model.DefaultImpactRules(), costs)
	propagator := service.NewPropagator(st, lifecycle, costs, zlog)

	// Handlers and middleware
	projectHandler := handler.NewProjectHandler(orchestrator, machine, analyzer, ledger, st, validate)
	assetHandler := handler.NewAssetHandler(lifecycle, propagator, st, validate)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": provider.IsConfigured(),
				"storage":  storage != nil,
				"auth":     cfg.JWT.Secret != "",
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	projects := api.Group("/projects")
	projects.Post("/", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), projectHandler.Create)
	projects.Get("/", projectHandler.List)
	projects.Get("/:id", projectHandler.Get)
	projects.Post("/:id/approve", projectHandler.Approve)
	projects.Post("/:id/cancel", projectHandler.Cancel)
	projects.Post("/:id/impact-preview", projectHandler.ImpactPreview)
	projects.Get("/:id/costs", projectHandler.Costs)
	projects.Get("/:id/scenes", projectHandler.ListScenes)
	projects.Put("/:id/scenes/:sceneId", rateLimiter.EditLimit(cfg.RateLimit.EditPerHour), projectHandler.EditScene)
	projects.Get("/:id/assets", assetHandler.List)

	assets := api.Group("/assets")
	assets.Get("/:id", assetHandler.Get)
	assets.Post("/:id/edit", rateLimiter.EditLimit(cfg.RateLimit.EditPerHour), assetHandler.Edit)
	assets.Get("/:id/propagation-preview", assetHandler.PropagationPreview)
	assets.Post("/:id/propagate", rateLimiter.EditLimit(cfg.RateLimit.EditPerHour), assetHandler.Propagate)
	assets.Post("/:id/regenerate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), assetHandler.Regenerate)
	assets.Post("/:id/reject", assetHandler.Reject)
	assets.Post("/:id/grade", assetHandler.Grade)
	assets.Post("/:id/cancel", assetHandler.Cancel)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/projects/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	// Asynq worker server
	pollWorker := worker.NewPollWorker(lifecycle, orchestrator, enq, zlog)
	go startWorkerServer(cfg, pollWorker, zlog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		zlog.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("Server shutdown error", "err", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	zlog.Info("Server starting", "addr", addr)
	if err := app.Listen(addr); err != nil {
		zlog.Fatal("Server error", "err", err)
	}
}

func startWorkerServer(cfg *config.Config, pollWorker *worker.PollWorker, zlog *logger.Logger) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	if err := srv.Run(worker.NewMux(pollWorker)); err != nil {
		zlog.Error("Asynq worker error", "err", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
