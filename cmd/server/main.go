package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/client"
	"github.com/mapvivid/cityroute/internal/config"
	"github.com/mapvivid/cityroute/internal/handler"
	"github.com/mapvivid/cityroute/internal/middleware"
	"github.com/mapvivid/cityroute/internal/queue"
	"github.com/mapvivid/cityroute/internal/service"
	"github.com/mapvivid/cityroute/internal/store"
	"github.com/mapvivid/cityroute/internal/worker"
	ws "github.com/mapvivid/cityroute/internal/websocket"
	"github.com/mapvivid/cityroute/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Redis backs both the job store and the task queue.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis not available", zap.Error(err))
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	jobStore := store.NewRedisStore(redisClient, cfg.Store.Retention)
	enqueuer := queue.NewClient(asynqClient, cfg.Tasks.Queue, cfg.Tasks.MaxRetry)
	generator := client.NewOpenAIClient(&cfg.OpenAI)

	jobService := service.NewJobService(jobStore, enqueuer, zlog)
	runner := worker.NewRunner(jobStore, generator, zlog)
	hub := ws.NewHub(jobStore, zlog)

	jobHandler := handler.NewJobHandler(jobService, validate)
	taskHandler := handler.NewTaskHandler(runner)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	tasksAuth := middleware.NewTasksAuthMiddleware(cfg.Tasks.Token)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	v1 := app.Group("/v1")
	v1.Post("/jobs", authMiddleware.Authenticate(), jobHandler.Create)
	v1.Get("/jobs/:jobId", jobHandler.Get)
	v1.Post("/tasks/runJob", tasksAuth.Authenticate(), taskHandler.RunJob)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	go startTaskServer(cfg, zlog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	zlog.Info("server starting", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}

// startTaskServer runs the asynq consumer that delivers queued tasks to
// the worker endpoint.
func startTaskServer(cfg *config.Config, zlog *zap.Logger) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				cfg.Tasks.Queue: 10,
			},
		},
	)

	dispatcher := queue.NewDispatcher(cfg.Tasks.WorkerURL, cfg.Tasks.Token, zlog)

	if err := srv.Run(queue.NewServeMux(dispatcher)); err != nil {
		zlog.Error("asynq server error", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(response.ErrorResponse{
		Error: response.ErrorDetail{
			Code:    response.CodeServiceError,
			Message: message,
		},
	})
}
