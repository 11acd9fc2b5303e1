package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/queue"
	"github.com/arvault/arvault/internal/telemetry"
)

func main() {
	var (
		mode      = flag.String("mode", "worker", "Mode to run: 'worker', 'scheduler', 'sweep'")
		olderThan = flag.Duration("older-than", config.PENDING_UPLOAD_EXPIRE_AFTER, "sweep mode: expire uploads pending for longer than this")
	)
	flag.Parse()

	logger := telemetry.NewLogger()

	shutdownTelemetry, err := telemetry.Setup(context.Background(), "arvault-worker", logger)
	if err != nil {
		logger.Error("Failed to set up telemetry", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	switch *mode {
	case "worker":
		runWorker(logger)
	case "scheduler":
		runScheduler(logger)
	case "sweep":
		if err := runSweep(logger, *olderThan); err != nil {
			logger.Error("Failed to enqueue sweep", slog.String("err", err.Error()))
			os.Exit(1)
		}
	default:
		logger.Error("Invalid mode. Use 'worker', 'scheduler' or 'sweep'", slog.String("mode", *mode))
		os.Exit(1)
	}
}

func runWorker(logger *slog.Logger) {
	logger.Info("Starting in WORKER mode...")

	worker, err := queue.NewWorker(logger)
	if err != nil {
		logger.Error("Failed to create worker", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Start worker in goroutine
	go func() {
		if err := worker.Start(); err != nil {
			logger.Error("Worker error", slog.String("err", err.Error()))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	worker.Stop()
	logger.Info("Worker exited properly")
}

func runScheduler(logger *slog.Logger) {
	logger.Info("Starting in SCHEDULER mode...")

	scheduler, err := queue.NewScheduler(logger)
	if err != nil {
		logger.Error("Failed to create scheduler", slog.String("err", err.Error()))
		os.Exit(1)
	}

	go func() {
		if err := scheduler.Start(); err != nil {
			logger.Error("Scheduler error", slog.String("err", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	scheduler.Stop()
	logger.Info("Scheduler exited properly")
}

// runSweep enqueues a single expiry sweep for the workers and exits.
func runSweep(logger *slog.Logger, olderThan time.Duration) error {
	client := queue.NewClientFromEnv(logger)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.EnqueueExpirePendingUploads(ctx, olderThan)
}
