package filestorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/usecase"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Storage implements usecase.FileStorageProvider on AWS S3.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3StorageFromEnv loads credentials and region the standard AWS way.
func NewS3StorageFromEnv(ctx context.Context, bucket string) (*S3Storage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Storage(s3.NewFromConfig(cfg), bucket), nil
}

func NewS3Storage(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}
}

func (f *S3Storage) CreateUploadGrant(ctx context.Context, key, contentType string) (usecase.UploadGrant, error) {
	expires := time.Minute * config.UPLOAD_URL_EXPIRE_MINUTES
	req, err := f.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &f.bucket,
		Key:         &key,
		ContentType: &contentType,
	}, func(po *s3.PresignOptions) {
		po.Expires = expires
	})
	if err != nil {
		return usecase.UploadGrant{}, err
	}

	return usecase.UploadGrant{
		URL:             req.URL,
		Method:          req.Method,
		RequiredHeaders: map[string]string{"Content-Type": contentType},
		ExpiresAt:       time.Now().Add(expires),
	}, nil
}

func (f *S3Storage) CreateDownloadGrant(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := f.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &f.bucket,
		Key:    &key,
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (f *S3Storage) StatObject(ctx context.Context, key string) (usecase.ObjectStat, error) {
	out, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &f.bucket,
		Key:    &key,
	})
	if isS3NotFound(err) {
		return usecase.ObjectStat{}, nil
	}
	if err != nil {
		return usecase.ObjectStat{}, err
	}
	return usecase.ObjectStat{Exists: true, SizeBytes: aws.ToInt64(out.ContentLength)}, nil
}

func (f *S3Storage) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range %d-%d", start, end)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &f.bucket,
		Key:    &key,
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(io.LimitReader(out.Body, end-start+1))
}

func (f *S3Storage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &f.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   &contentType,
	})
	return err
}

func (f *S3Storage) DeleteObject(ctx context.Context, key string) error {
	_, err := f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &f.bucket,
		Key:    &key,
	})
	return err
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
