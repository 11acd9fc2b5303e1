package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/server"
)

// in-flight completions may still be running the pipeline
const shutdownGrace = config.PROCESSING_TIMEOUT + 30*time.Second

func main() {
	app, err := server.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start api: %v\n", err)
		os.Exit(1)
	}
	logger := app.Logger()

	errc := make(chan error, 1)
	go func() {
		errc <- app.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down API server...", slog.String("signal", sig.String()))
	case err := <-errc:
		if err != nil {
			logger.Error("API server error", slog.String("err", err.Error()))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger.Info("API server exited properly")
}
