package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/notify"
	"github.com/meyoo/platform/internal/tasks"
	"github.com/meyoo/platform/pkg/config"
	"github.com/meyoo/platform/pkg/queue"
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

	logger.Info("starting Meyoo worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Codes are shared with the API server through Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	codeStore := notify.NewRedisCodeStore(redisClient)

	var sender notify.Sender
	if cfg.SMTP.Configured() {
		sender = notify.NewSMTPSender(&cfg.SMTP)
	} else {
		logger.Warn("SMTP not configured, codes will be logged instead of emailed")
		sender = notify.NewLogSender(logger)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, logger, codeStore, sender)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodically enqueue the invite-expiry sweep
	client := queue.NewClient(&cfg.Redis)
	go runSweepSchedule(ctx, client, cfg.Invites.SweepCron, logger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	client.Close()
	redisClient.Close()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}

// runSweepSchedule enqueues an invite sweep task at each tick of the
// configured cron expression until ctx is cancelled.
func runSweepSchedule(ctx context.Context, client *asynq.Client, cronExpr string, logger *slog.Logger) {
	if err := util.ValidateCronExpr(cronExpr); err != nil {
		logger.Error("invalid invite sweep schedule", "cron", cronExpr, "error", err)
		return
	}

	for {
		next, err := util.NextCronTime(cronExpr, time.Now())
		if err != nil {
			logger.Error("failed to compute next sweep time", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		task := tasks.NewInviteSweepTask()
		if _, err := client.Enqueue(task, asynq.Queue("low")); err != nil {
			logger.Error("failed to enqueue invite sweep", "error", err)
		} else {
			logger.Info("invite sweep enqueued", "next", next)
		}
	}
}
