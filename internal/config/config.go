package config

import (
	"fmt"
	"os"
	"time"
)

// Header constants.
const (
	HEADER_KEY_X_COMPANY_ID = "X-Company-Id"
	HEADER_KEY_X_USER_ID    = "X-User-Id"
	HEADER_KEY_X_CLIENT_ID  = "X-Client-Id"
)

const (
	ENV_KEY_APP_ENV   = "APP_ENV"
	ENV_KEY_PORT      = "PORT"
	ENV_KEY_LOG_LEVEL = "LOG_LEVEL"

	ENV_KEY_DB_DATABASE             = "DB_DATABASE"
	ENV_KEY_DB_PASSWORD             = "DB_PASSWORD"
	ENV_KEY_DB_USER                 = "DB_USER"
	ENV_KEY_DB_PORT                 = "DB_PORT"
	ENV_KEY_DB_HOST                 = "DB_HOST"
	ENV_KEY_DB_MAX_OPEN_CONNECTIONS = "DB_MAX_OPEN_CONNECTIONS"

	ENV_KEY_STORAGE_DRIVER     = "STORAGE_DRIVER"
	ENV_KEY_MINIO_BUCKET       = "MINIO_BUCKET"
	ENV_KEY_MINIO_ENDPOINT     = "MINIO_ENDPOINT"
	ENV_KEY_MINIO_ACCESS_KEY   = "MINIO_ACCESS_KEY"
	ENV_KEY_MINIO_SECRET_KEY   = "MINIO_SECRET_KEY"
	ENV_KEY_MINIO_INSECURE     = "MINIO_INSECURE"
	ENV_KEY_S3_BUCKET          = "S3_BUCKET"
	ENV_KEY_REDIS_HOST         = "REDIS_HOST"
	ENV_KEY_REDIS_PORT         = "REDIS_PORT"
	ENV_KEY_REDIS_PASSWORD     = "REDIS_PASSWORD"
	ENV_KEY_WORKER_CONCURRENCY = "WORKER_CONCURRENCY"

	ENV_KEY_USDZ_CONVERTER_CMD     = "USDZ_CONVERTER_CMD"
	ENV_KEY_USDZ_CONVERTER_TIMEOUT = "USDZ_CONVERTER_TIMEOUT"
	ENV_KEY_USDZ_MAX_SOURCE_BYTES  = "USDZ_MAX_SOURCE_BYTES"

	ENV_KEY_OTEL_ENABLED = "OTEL_ENABLED"
)

const (
	STORAGE_DRIVER_MINIO = "minio"
	STORAGE_DRIVER_S3    = "s3"
)

// Upload policy.
const (
	MODEL_CONTENT_TYPE   = "model/gltf-binary"
	MAX_MODEL_SIZE_BYTES = 500 * 1024 * 1024

	// Large models on slow links need a wide window.
	UPLOAD_URL_EXPIRE_MINUTES   = 30
	DOWNLOAD_URL_EXPIRE_MINUTES = 60

	PROCESSING_TIMEOUT = 5 * time.Minute

	USDZ_DEFAULT_MAX_SOURCE_BYTES = 100 * 1024 * 1024
	USDZ_DEFAULT_TIMEOUT          = 2 * time.Minute
	USDZ_MAX_TEXTURE_SIZE         = 2048

	THUMBNAIL_SIZE = 512
)

// Queue task types.
const (
	TASK_TYPE_EXPIRE_PENDING_UPLOADS = "assets:expire_pending"
	EXPIRE_PENDING_CRON_SPEC         = "@every 10m"

	// Upload grants last UPLOAD_URL_EXPIRE_MINUTES; anything still pending
	// well after that was abandoned.
	PENDING_UPLOAD_EXPIRE_AFTER = time.Hour
)

type ContextKey uint

const (
	_ ContextKey = iota
	CTX_KEY_COMPANY_ID
)

// RedisAddr joins REDIS_HOST and REDIS_PORT, defaulting to localhost:6379.
func RedisAddr() string {
	host, port := os.Getenv(ENV_KEY_REDIS_HOST), os.Getenv(ENV_KEY_REDIS_PORT)
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", host, port)
}
