package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/arvault/arvault/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// implements usecase.Repository and usecase.ScopeResolver
type service struct {
	db     *gorm.DB
	logger *slog.Logger
}

// slot indexes back the one-active-source-model rule. Two partial indexes
// because NULL submodel ids never collide in a unique index.
var slotIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_source_version
	ON assets (company_id, version_id)
	WHERE kind = 'SOURCE_MODEL'
	AND status <> 'FAILED'
	AND submodel_id IS NULL;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_source_submodel
	ON assets (company_id, version_id, submodel_id)
	WHERE kind = 'SOURCE_MODEL'
	AND status <> 'FAILED'
	AND submodel_id IS NOT NULL;`,
}

// New connects to Postgres using the DB_* environment.
func New(l *slog.Logger) (*service, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv(config.ENV_KEY_DB_USER),
		os.Getenv(config.ENV_KEY_DB_PASSWORD),
		os.Getenv(config.ENV_KEY_DB_HOST),
		os.Getenv(config.ENV_KEY_DB_PORT),
		os.Getenv(config.ENV_KEY_DB_DATABASE),
	)

	s, err := Open(postgres.Open(connStr), l)
	if err != nil {
		return nil, err
	}

	db, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	if m, err := strconv.Atoi(os.Getenv(config.ENV_KEY_DB_MAX_OPEN_CONNECTIONS)); err == nil {
		db.SetMaxOpenConns(m)
	}
	return s, nil
}

// Open migrates the schema on any gorm dialector.
func Open(dialector gorm.Dialector, l *slog.Logger) (*service, error) {
	if l == nil {
		l = slog.Default()
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewSlogGormLogger(l),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := gormDB.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}

	// migrate the schema
	err = gormDB.AutoMigrate(
		Version{},
		Submodel{},
		Asset{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	for _, stmt := range slotIndexes {
		if err := gormDB.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("create slot index: %w", err)
		}
	}

	return &service{db: gormDB, logger: l}, nil
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	db, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	// Ping the database
	if err := db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.logger.Error("db down", slog.String("err", err.Error()))
		return stats
	}

	// Database is up, add more statistics
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	s.logger.Info("disconnected from database")
	return db.Close()
}
