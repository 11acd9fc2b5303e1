package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/usecase"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Region skips the bucket location lookup when set.
	Region   string
	Insecure bool
}

func NewMinIOStorage(opt MinIOOptions) (*MinIOStorage, error) {
	m, err := minio.New(opt.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKeyID, opt.SecretAccessKey, ""),
		Secure: !opt.Insecure,
		Region: opt.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinIOStorage{
		client: m,
		bucket: opt.Bucket,
	}, nil
}

// MinIOStorage implements usecase.FileStorageProvider.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// CreateUploadGrant signs the Content-Type into the URL, so the upload must
// send exactly that header.
func (f *MinIOStorage) CreateUploadGrant(ctx context.Context, key, contentType string) (usecase.UploadGrant, error) {
	expires := time.Minute * config.UPLOAD_URL_EXPIRE_MINUTES
	headers := http.Header{}
	headers.Set("Content-Type", contentType)

	u, err := f.client.PresignHeader(ctx, http.MethodPut, f.bucket, key, expires, nil, headers)
	if err != nil {
		return usecase.UploadGrant{}, err
	}
	return usecase.UploadGrant{
		URL:             u.String(),
		Method:          http.MethodPut,
		RequiredHeaders: map[string]string{"Content-Type": contentType},
		ExpiresAt:       time.Now().Add(expires),
	}, nil
}

func (f *MinIOStorage) CreateDownloadGrant(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := f.client.PresignedGetObject(ctx, f.bucket, key, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (f *MinIOStorage) StatObject(ctx context.Context, key string) (usecase.ObjectStat, error) {
	info, err := f.client.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return usecase.ObjectStat{}, nil
		}
		return usecase.ObjectStat{}, err
	}
	return usecase.ObjectStat{Exists: true, SizeBytes: info.Size}, nil
}

func (f *MinIOStorage) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range %d-%d", start, end)
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, err
	}

	obj, err := f.client.GetObject(ctx, f.bucket, key, opts)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(io.LimitReader(obj, end-start+1))
}

func (f *MinIOStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := f.client.PutObject(ctx, f.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (f *MinIOStorage) DeleteObject(ctx context.Context, key string) error {
	return f.client.RemoveObject(ctx, f.bucket, key, minio.RemoveObjectOptions{})
}
