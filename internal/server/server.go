package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/arvault/arvault/internal/artifact"
	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/database"
	"github.com/arvault/arvault/internal/filestorage"
	"github.com/arvault/arvault/internal/lock"
	"github.com/arvault/arvault/internal/telemetry"
	"github.com/arvault/arvault/internal/usecase"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
)

// Service is the asset lifecycle as seen by the HTTP layer.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string

	RequestUploadSlot(context.Context, usecase.RequestUploadSlotInput) (usecase.UploadSlot, error)
	CompleteUpload(ctx context.Context, id, companyID uuid.UUID) (usecase.Asset, error)
	RetryUpload(ctx context.Context, id, companyID uuid.UUID) (usecase.UploadSlot, error)
	GetAsset(ctx context.Context, id, companyID uuid.UUID) (usecase.Asset, error)
	ListAssets(context.Context, usecase.ListAssetsOption) ([]usecase.Asset, int, error)
	DeleteAsset(ctx context.Context, id, companyID uuid.UUID) error
}

type Server struct {
	server    Service
	validator *validator.Validate
	logger    *slog.Logger
}

func NewServer(sv Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		server:    sv,
		validator: validator.New(),
		logger:    logger,
	}
}

// App owns the HTTP server and everything it was wired with.
type App struct {
	httpServer *http.Server
	logger     *slog.Logger
	closers    []func(context.Context) error
}

// NewApp wires the API from the environment. The storage client, Redis client
// and database are created once here and injected.
func NewApp() (*App, error) {
	ctx := context.Background()
	logger := telemetry.NewLogger()

	shutdownTelemetry, err := telemetry.Setup(ctx, "arvault-api", logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	app := &App{logger: logger, closers: []func(context.Context) error{shutdownTelemetry}}

	repo, err := database.New(logger)
	if err != nil {
		return nil, errors.Join(err, app.close(ctx))
	}
	app.closers = append(app.closers, func(context.Context) error { return repo.Close() })

	fsp, err := filestorage.NewFromEnv(ctx)
	if err != nil {
		return nil, errors.Join(err, app.close(ctx))
	}

	var locker usecase.Locker
	if rdb, err := lock.NewRedisClientFromEnv(ctx); err == nil {
		locker = lock.NewRedisLocker(rdb, logger)
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
	} else {
		logger.Warn("redis unavailable, using in-process asset locks", slog.String("err", err.Error()))
		locker = lock.NewLocalLocker()
	}

	opt := usecase.DefaultOptions()
	if n, err := strconv.ParseInt(os.Getenv(config.ENV_KEY_USDZ_MAX_SOURCE_BYTES), 10, 64); err == nil && n > 0 {
		opt.USDZMaxSourceBytes = n
	}

	uc := usecase.New(
		repo,
		fsp,
		repo,
		locker,
		artifact.NewThumbnailer(),
		artifact.NewConverterFromEnv(),
		logger,
		opt,
	)

	port, _ := strconv.Atoi(os.Getenv(config.ENV_KEY_PORT))
	if port == 0 {
		port = 8080
	}

	s := NewServer(uc, logger)
	app.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     s.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// completion runs the processing pipeline inside the request
		WriteTimeout: config.PROCESSING_TIMEOUT + 30*time.Second,
	}
	return app, nil
}

func (a *App) Logger() *slog.Logger {
	return a.logger
}

func (a *App) Addr() string {
	return a.httpServer.Addr
}

func (a *App) ListenAndServe() error {
	a.logger.Info("api server starting", slog.String("addr", a.Addr()))
	err := a.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	return errors.Join(a.httpServer.Shutdown(ctx), a.close(ctx))
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}
