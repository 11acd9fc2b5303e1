package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/arvault/arvault/internal/artifact"
	"github.com/arvault/arvault/internal/config"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/arvault/arvault/internal/usecase"

// Repository is the asset directory. It persists what it is given and holds
// no business rules.
type Repository interface {
	Health() map[string]string
	Close() error

	CreateAsset(context.Context, Asset) (Asset, error)
	GetAssetByID(context.Context, uuid.UUID) (Asset, error)
	ListSlotAssets(context.Context, Slot, AssetKind) ([]Asset, error)
	ListAssets(context.Context, ListAssetsOption) ([]Asset, int, error)
	ListAssetsBySource(context.Context, uuid.UUID) ([]Asset, error)
	ListStaleAssets(ctx context.Context, status AssetStatus, before time.Time, limit int) ([]Asset, error)
	UpdateAssetStatus(context.Context, AssetStatusUpdate) (Asset, error)
	DeleteAsset(context.Context, uuid.UUID) error
}

// ScopeResolver confirms that a version (and submodel) exists and reports the
// company owning it. Missing scopes yield ErrNotFound.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, versionID uuid.UUID, submodelID *uuid.UUID) (Scope, error)
}

type UploadGrant struct {
	URL             string
	Method          string
	RequiredHeaders map[string]string
	ExpiresAt       time.Time
}

type ObjectStat struct {
	Exists    bool
	SizeBytes int64
}

// FileStorageProvider is the object store. A missing object is reported by
// StatObject as Exists=false with a nil error.
type FileStorageProvider interface {
	CreateUploadGrant(ctx context.Context, key, contentType string) (UploadGrant, error)
	CreateDownloadGrant(ctx context.Context, key string, ttl time.Duration) (string, error)
	StatObject(ctx context.Context, key string) (ObjectStat, error)
	ReadRange(ctx context.Context, key string, start, endInclusive int64) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// Locker provides per-asset advisory locks. acquired is false when another
// holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

type Thumbnailer interface {
	Generate(context.Context, artifact.ThumbnailInput) (artifact.Thumbnail, error)
}

type Options struct {
	ProcessingTimeout  time.Duration
	DownloadGrantTTL   time.Duration
	USDZMaxSourceBytes int64
	LockTTL            time.Duration
}

func DefaultOptions() Options {
	return Options{
		ProcessingTimeout:  config.PROCESSING_TIMEOUT,
		DownloadGrantTTL:   config.DOWNLOAD_URL_EXPIRE_MINUTES * time.Minute,
		USDZMaxSourceBytes: config.USDZ_DEFAULT_MAX_SOURCE_BYTES,
		LockTTL:            config.PROCESSING_TIMEOUT + time.Minute,
	}
}

type Usecase struct {
	repo                Repository
	fileStorageProvider FileStorageProvider
	scopeResolver       ScopeResolver
	locker              Locker
	thumbnailer         Thumbnailer
	converter           artifact.Converter
	logger              *slog.Logger
	opt                 Options

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	now      func() time.Time
}

// New wires the lifecycle engine. locker and converter may be nil; without a
// locker only the conditional status updates guard concurrent completions.
func New(
	repo Repository,
	fsp FileStorageProvider,
	scope ScopeResolver,
	locker Locker,
	thumbnailer Thumbnailer,
	converter artifact.Converter,
	logger *slog.Logger,
	opt Options,
) Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opt.ProcessingTimeout <= 0 {
		opt.ProcessingTimeout = def.ProcessingTimeout
	}
	if opt.DownloadGrantTTL <= 0 {
		opt.DownloadGrantTTL = def.DownloadGrantTTL
	}
	if opt.USDZMaxSourceBytes <= 0 {
		opt.USDZMaxSourceBytes = def.USDZMaxSourceBytes
	}
	if opt.LockTTL <= 0 {
		opt.LockTTL = opt.ProcessingTimeout + time.Minute
	}

	outcomes, err := otel.Meter(instrumentationName).Int64Counter(
		"assets.pipeline.outcomes",
		metric.WithDescription("Terminal outcomes of the asset ingestion pipeline"),
	)
	if err != nil {
		outcomes = noop.Int64Counter{}
	}

	return Usecase{
		repo:                repo,
		fileStorageProvider: fsp,
		scopeResolver:       scope,
		locker:              locker,
		thumbnailer:         thumbnailer,
		converter:           converter,
		logger:              logger,
		opt:                 opt,
		tracer:              otel.Tracer(instrumentationName),
		outcomes:            outcomes,
		now:                 time.Now,
	}
}

func (u Usecase) Health() map[string]string {
	return u.repo.Health()
}

func (u Usecase) Close() error {
	return u.repo.Close()
}
