package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meyoo/platform/internal/api"
	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/identity"
	"github.com/meyoo/platform/internal/notify"
	"github.com/meyoo/platform/internal/onboarding"
	"github.com/meyoo/platform/internal/organizations"
	"github.com/meyoo/platform/pkg/config"
	"github.com/meyoo/platform/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting Meyoo server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Initialize Asynq client for background job enqueuing
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
		})
	}

	// Verification codes live in Redis with a short TTL; fall back to an
	// in-process store when Redis is unavailable (single-node dev only).
	var codeStore notify.CodeStore
	if redisClient != nil {
		codeStore = notify.NewRedisCodeStore(redisClient)
	} else {
		codeStore = notify.NewMemoryCodeStore()
	}

	var sender notify.Sender
	if cfg.SMTP.Configured() {
		sender = notify.NewSMTPSender(&cfg.SMTP)
	} else {
		logger.Warn("SMTP not configured, codes will be logged instead of emailed")
		sender = notify.NewLogSender(logger)
	}

	// Initialize services
	jwtService := identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	reconciler := identity.NewReconciler(db, logger, cfg.Onboarding.SlugMaxAttempts, cfg.Onboarding.Steps)
	authService := identity.NewService(db, jwtService, reconciler, codeStore, sender, asynqClient, logger)
	googleAuth := identity.NewGoogleAuthenticator(&cfg.Google, authService)
	onboardingService := onboarding.NewService(db, cfg.Onboarding.Steps, logger)
	orgService := organizations.NewService(db, onboardingService, asynqClient, logger, cfg.Onboarding.SlugMaxAttempts, cfg.Invites.Expiry())

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:                db,
		Redis:             redisClient,
		Logger:            logger,
		JWTService:        jwtService,
		AuthService:       authService,
		GoogleAuth:        googleAuth,
		OrgService:        orgService,
		OnboardingService: onboardingService,
		RateLimitReqs:     cfg.RateLimit.Requests,
		RateLimitSecs:     cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
