package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/config"
	"github.com/whisperplaud/api/internal/handler"
	"github.com/whisperplaud/api/internal/middleware"
	"github.com/whisperplaud/api/internal/service"
	"github.com/whisperplaud/api/internal/storage"
	"github.com/whisperplaud/api/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis client for rate limiting and health checks
	redisOpts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Postgres
	pool, err := store.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	db := store.NewPostgres(pool)
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Object storage
	objects, err := storage.New(storage.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to init object storage: %v", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		log.Printf("Warning: object storage not available: %v", err)
	}

	// Notification bus
	notifyBus := bus.NewRedisBus(redisOpts)

	// Services
	jobService := service.NewJobService(db, notifyBus, cfg.Jobs.StaleAfter)
	uploadService := service.NewUploadService(db, objects, jobService, cfg.Upload.SizeLimit, cfg.Upload.PresignExpiry)
	transcriptService := service.NewTranscriptService(objects)
	authService := service.NewAuthService(cfg.Auth.AdminUser, cfg.Auth.AdminPasswordHash, cfg.JWT.Secret, cfg.JWT.Expiration)
	streamServer := service.NewStreamServer(db, cfg.Stream.PollInterval, cfg.Stream.MaxLifetime)

	// Progress subscriber: one per process, lives until shutdown
	progressSub := service.NewProgressSubscriber(db, notifyBus)
	if err := progressSub.Start(ctx); err != nil {
		log.Fatalf("Failed to start progress subscriber: %v", err)
	}

	// Validator
	validate := validator.New()

	// Handlers
	authHandler := handler.NewAuthHandler(authService, validate)
	fileHandler := handler.NewFileHandler(uploadService, validate)
	jobHandler := handler.NewJobHandler(jobService, streamServer)
	transcriptHandler := handler.NewTranscriptHandler(transcriptService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		redisOK := redisClient.Ping(c.Context()).Err() == nil
		dbOK := pool.Ping(c.Context()) == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":      redisOK,
				"postgres":   dbOK,
				"subscriber": progressSub.Running(),
			},
		})
	})

	// Auth
	app.Post("/api/auth/login", rateLimiter.LoginLimit(cfg.RateLimit.LoginPerMin), authHandler.Login)

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	files := api.Group("/files")
	files.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), fileHandler.PrepareUpload)
	files.Patch("/upload", fileHandler.CompleteUpload)
	files.Get("/", fileHandler.List)
	files.Delete("/:id", fileHandler.Delete)

	jobs := api.Group("/jobs")
	jobs.Get("/", jobHandler.List)
	jobs.Get("/:id", jobHandler.Get)
	jobs.Get("/:id/events", jobHandler.Events)

	api.Get("/transcripts/:fileId", transcriptHandler.Get)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:id", authMiddleware.Authenticate(), jobHandler.EventsWS())

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
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
