package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/auth"
	"github.com/competeiq/api/internal/client"
	"github.com/competeiq/api/internal/config"
	"github.com/competeiq/api/internal/handler"
	"github.com/competeiq/api/internal/middleware"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/obs"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/redislock"
	"github.com/competeiq/api/internal/scrape"
	"github.com/competeiq/api/internal/service"
	ws "github.com/competeiq/api/internal/websocket"
	"github.com/competeiq/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownObs, log := obs.Init(obs.Options{
		ServiceName:  cfg.Telemetry.ServiceName,
		LogLevel:     cfg.Server.LogLevel,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := model.NewValidator()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// External clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	identityClient := client.NewIdentityClient(&cfg.Identity)

	// R2 is optional; audio falls back to a mock URL without it.
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn("R2 client not initialized", "error", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Info("R2 storage not configured, using mock audio URLs")
	}

	// OIDC tokens are optional; service-issued HMAC tokens always work.
	var tokenVerifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			log.Warn("OIDC verifier not initialized", "issuer", cfg.Zitadel.Issuer, "error", err)
		} else {
			defer oidcVerifier.Close()
			tokenVerifier = oidcVerifier
		}
	}
	authenticator := auth.NewAuthenticator(tokenVerifier, cfg.JWT.Secret)

	// Services
	locks := redislock.New(redisClient, "")
	catalog := progress.NewCatalog(cfg.Analysis.IncludeWeaknessAnalysis)
	analysisService := service.NewAnalysisService(redisClient, asynqClient, catalog, cfg.Analysis.EstimatedDuration)
	assetService := service.NewAssetService(redisClient, groqClient, groqClient, storage, analysisService, log)
	sessionService := service.NewSessionService(redisClient, locks)
	authService := service.NewAuthService(redisClient, identityClient, cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Hour)
	exportService := service.NewExportService(analysisService)
	agents := service.NewAgents(groqClient, scrape.New(0), log)

	// Handlers
	analysisHandler := handler.NewAnalysisHandler(analysisService, exportService, validate)
	assetHandler := handler.NewAssetHandler(assetService, validate)
	sessionHandler := handler.NewSessionHandler(sessionService, validate)
	authHandler := handler.NewAuthHandler(authService, authenticator, validate)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Info("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if tokenVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(tokenVerifier, cfg.JWT.Secret)
		} else if tokenVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(tokenVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.Metrics())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq":     groqClient.IsConfigured(),
				"r2":       storage != nil,
				"identity": identityClient.IsConfigured(),
				"auth":     tokenVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Auth routes
	authGroup := app.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/logout", apiAuthMiddleware, authHandler.Logout)
	authGroup.Get("/user", apiAuthMiddleware, authHandler.User)
	authGroup.Get("/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	api.Post("/analyze-company", rateLimiter.AnalyzeLimit(cfg.RateLimit.AnalyzePerHour), analysisHandler.Start)
	api.Get("/analysis/:id/progress", analysisHandler.Progress)
	api.Get("/analysis/:id/export", rateLimiter.ExportLimit(cfg.RateLimit.ExportsPerHour), analysisHandler.Export)
	api.Get("/analysis/:id", analysisHandler.Result)

	assetsLimit := rateLimiter.AssetsLimit(cfg.RateLimit.AssetsPerHour)
	api.Post("/generate-script", assetsLimit, assetHandler.Script)
	api.Post("/generate-images", assetsLimit, assetHandler.Images)
	api.Post("/generate-audio", assetsLimit, assetHandler.Audio)

	sessions := api.Group("/sessions", rateLimiter.SessionsLimit(cfg.RateLimit.SessionsPerMin))
	sessions.Get("/", sessionHandler.List)
	sessions.Post("/", sessionHandler.Create)
	sessions.Get("/active", sessionHandler.Active)
	sessions.Put("/:id", sessionHandler.Update)
	sessions.Post("/:id/activate", sessionHandler.Activate)
	sessions.Delete("/:id", sessionHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/analysis/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	// Start Asynq worker server
	analysisWorker := worker.NewAnalysisWorker(analysisService, agents, hub, worker.AnalysisWorkerOptions{
		StepDelay: cfg.Analysis.StepDelay,
		Locks:     locks,
		Logger:    log,
	})
	workerSrv := newWorkerServer(cfg, redisOpt)
	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(service.TaskTypeAnalysis, analysisWorker.ProcessTask)
		if err := workerSrv.Run(mux); err != nil {
			log.Error("asynq worker stopped", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		workerSrv.Shutdown()
		stop()
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env, "steps", len(catalog))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownObs(flushCtx); err != nil {
		log.Error("telemetry shutdown error", "error", err)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	concurrency := cfg.Analysis.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			service.QueueAnalysis: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	}
	return asynq.InfoLevel
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
