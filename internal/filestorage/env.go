package filestorage

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/usecase"
)

// NewFromEnv builds the provider selected by STORAGE_DRIVER (minio by
// default). The binaries create it once and inject it everywhere.
func NewFromEnv(ctx context.Context) (usecase.FileStorageProvider, error) {
	switch driver := os.Getenv(config.ENV_KEY_STORAGE_DRIVER); driver {
	case "", config.STORAGE_DRIVER_MINIO:
		insecure, _ := strconv.ParseBool(os.Getenv(config.ENV_KEY_MINIO_INSECURE))
		return NewMinIOStorage(MinIOOptions{
			Endpoint:        os.Getenv(config.ENV_KEY_MINIO_ENDPOINT),
			AccessKeyID:     os.Getenv(config.ENV_KEY_MINIO_ACCESS_KEY),
			SecretAccessKey: os.Getenv(config.ENV_KEY_MINIO_SECRET_KEY),
			Bucket:          os.Getenv(config.ENV_KEY_MINIO_BUCKET),
			Insecure:        insecure,
		})
	case config.STORAGE_DRIVER_S3:
		return NewS3StorageFromEnv(ctx, os.Getenv(config.ENV_KEY_S3_BUCKET))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
