package filestorage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arvault/arvault/internal/usecase"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ usecase.FileStorageProvider = (*MinIOStorage)(nil)
	_ usecase.FileStorageProvider = (*S3Storage)(nil)
)

// fakeObjectStore answers the subset of the S3 REST API the providers use,
// with path-style addressing.
type fakeObjectStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func newFakeObjectStore(bucket string) *fakeObjectStore {
	return &fakeObjectStore{bucket: bucket, objects: map[string][]byte{}}
}

func (s *fakeObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + s.bucket + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, prefix)

	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		if !ok {
			if r.Method == http.MethodGet {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprintf(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message><Key>%s</Key></Error>`, key)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, status := data, http.StatusOK
		if rng := r.Header.Get("Range"); rng != "" {
			var start, end int
			_, _ = fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
			if end >= len(data) {
				end = len(data) - 1
			}
			body, status = data[start:end+1], http.StatusPartialContent
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Content-Type", "model/gltf-binary")
		w.WriteHeader(status)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	case http.MethodDelete:
		s.mu.Lock()
		delete(s.objects, key)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeObjectStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func newTestS3(t *testing.T, store *fakeObjectStore) *S3Storage {
	t.Helper()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}),
		RetryMaxAttempts: 1,
	})
	return NewS3Storage(client, store.bucket)
}

func newTestMinIO(t *testing.T, store *fakeObjectStore) *MinIOStorage {
	t.Helper()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	m, err := NewMinIOStorage(MinIOOptions{
		Endpoint:        u.Host,
		AccessKeyID:     "test",
		SecretAccessKey: "testtesttest",
		Bucket:          store.bucket,
		Region:          "us-east-1",
		Insecure:        true,
	})
	require.NoError(t, err)
	return m
}

func TestProviders(t *testing.T) {
	const key = "companies/c/versions/v/models/a/model.glb"
	data := []byte("glTF\x02\x00\x00\x00\x10\x00\x00\x00rest")

	providers := map[string]func(*testing.T, *fakeObjectStore) usecase.FileStorageProvider{
		"s3":    func(t *testing.T, s *fakeObjectStore) usecase.FileStorageProvider { return newTestS3(t, s) },
		"minio": func(t *testing.T, s *fakeObjectStore) usecase.FileStorageProvider { return newTestMinIO(t, s) },
	}

	for name, newProvider := range providers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newFakeObjectStore("arvault")
			p := newProvider(t, store)

			stat, err := p.StatObject(ctx, key)
			require.NoError(t, err, "missing objects are not errors")
			assert.False(t, stat.Exists)

			store.put(key, data)

			stat, err = p.StatObject(ctx, key)
			require.NoError(t, err)
			assert.True(t, stat.Exists)
			assert.Equal(t, int64(len(data)), stat.SizeBytes)

			header, err := p.ReadRange(ctx, key, 0, 11)
			require.NoError(t, err)
			assert.Equal(t, data[:12], header)

			_, err = p.ReadRange(ctx, key, 5, 2)
			assert.Error(t, err)

			grant, err := p.CreateUploadGrant(ctx, key, "model/gltf-binary")
			require.NoError(t, err)
			assert.Equal(t, http.MethodPut, grant.Method)
			assert.Equal(t, "model/gltf-binary", grant.RequiredHeaders["Content-Type"])
			assert.Contains(t, grant.URL, "X-Amz-Signature")
			assert.Contains(t, grant.URL, "X-Amz-Expires=1800")
			assert.WithinDuration(t, time.Now().Add(30*time.Minute), grant.ExpiresAt, time.Minute)

			dl, err := p.CreateDownloadGrant(ctx, key, time.Hour)
			require.NoError(t, err)
			assert.Contains(t, dl, "X-Amz-Expires=3600")
			assert.Contains(t, dl, "model.glb")

			require.NoError(t, p.DeleteObject(ctx, key))
			stat, err = p.StatObject(ctx, key)
			require.NoError(t, err)
			assert.False(t, stat.Exists)
		})
	}
}

func TestReadRangeShortObject(t *testing.T) {
	store := newFakeObjectStore("arvault")
	store.put("tiny.glb", []byte("glTF"))
	p := newTestS3(t, store)

	b, err := p.ReadRange(context.Background(), "tiny.glb", 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("glTF"), b)
}
