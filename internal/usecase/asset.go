package usecase

import (
	"time"

	"github.com/google/uuid"
)

type AssetKind string

const (
	AssetKindSourceModel    AssetKind = "SOURCE_MODEL"
	AssetKindOptimizedModel AssetKind = "OPTIMIZED_MODEL"
	AssetKindARInterchange  AssetKind = "AR_INTERCHANGE"
	AssetKindThumbnail      AssetKind = "THUMBNAIL"
)

var AssetKinds = []AssetKind{
	AssetKindSourceModel,
	AssetKindOptimizedModel,
	AssetKindARInterchange,
	AssetKindThumbnail,
}

func (k AssetKind) Valid() bool {
	switch k {
	case AssetKindSourceModel, AssetKindOptimizedModel, AssetKindARInterchange, AssetKindThumbnail:
		return true
	}
	return false
}

// StorageBucket is the path segment that groups objects of this kind.
func (k AssetKind) StorageBucket() string {
	switch k {
	case AssetKindSourceModel:
		return "models"
	case AssetKindOptimizedModel:
		return "optimized"
	case AssetKindARInterchange:
		return "ar"
	case AssetKindThumbnail:
		return "thumbnails"
	}
	panic("usecase: unknown asset kind " + string(k))
}

// Derived reports whether assets of this kind are generated from a source
// model and therefore carry a lineage pointer.
func (k AssetKind) Derived() bool {
	switch k {
	case AssetKindSourceModel:
		return false
	case AssetKindOptimizedModel, AssetKindARInterchange, AssetKindThumbnail:
		return true
	}
	panic("usecase: unknown asset kind " + string(k))
}

type AssetStatus string

const (
	AssetStatusPendingUpload AssetStatus = "PENDING_UPLOAD"
	AssetStatusUploaded      AssetStatus = "UPLOADED"
	AssetStatusProcessing    AssetStatus = "PROCESSING"
	AssetStatusReady         AssetStatus = "READY"
	AssetStatusFailed        AssetStatus = "FAILED"
)

var AssetStatuses = []AssetStatus{
	AssetStatusPendingUpload,
	AssetStatusUploaded,
	AssetStatusProcessing,
	AssetStatusReady,
	AssetStatusFailed,
}

var assetTransitions = map[AssetStatus][]AssetStatus{
	AssetStatusPendingUpload: {AssetStatusUploaded, AssetStatusFailed},
	AssetStatusUploaded:      {AssetStatusProcessing, AssetStatusFailed},
	AssetStatusProcessing:    {AssetStatusReady, AssetStatusFailed},
	AssetStatusReady:         nil,
	AssetStatusFailed:        {AssetStatusPendingUpload},
}

func (s AssetStatus) Valid() bool {
	_, ok := assetTransitions[s]
	return ok
}

func (s AssetStatus) CanTransitionTo(to AssetStatus) bool {
	for _, next := range assetTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AssetMeta is the format-specific attribute bag stored with an asset.
type AssetMeta struct {
	GLBVersion        uint32     `json:"glbVersion,omitempty"`
	GLBDeclaredLength uint32     `json:"glbDeclaredLength,omitempty"`
	SourceAssetID     *uuid.UUID `json:"sourceAssetId,omitempty"`
	ThumbnailAssetID  *uuid.UUID `json:"thumbnailAssetId,omitempty"`
	USDZAssetID       *uuid.UUID `json:"usdzAssetId,omitempty"`
	Width             int        `json:"width,omitempty"`
	Height            int        `json:"height,omitempty"`
	Colors            [][4]uint8 `json:"colors,omitempty"`
}

// Merge returns m overlaid with the non-zero fields of o.
func (m AssetMeta) Merge(o AssetMeta) AssetMeta {
	if o.GLBVersion != 0 {
		m.GLBVersion = o.GLBVersion
	}
	if o.GLBDeclaredLength != 0 {
		m.GLBDeclaredLength = o.GLBDeclaredLength
	}
	if o.SourceAssetID != nil {
		m.SourceAssetID = o.SourceAssetID
	}
	if o.ThumbnailAssetID != nil {
		m.ThumbnailAssetID = o.ThumbnailAssetID
	}
	if o.USDZAssetID != nil {
		m.USDZAssetID = o.USDZAssetID
	}
	if o.Width != 0 {
		m.Width = o.Width
	}
	if o.Height != 0 {
		m.Height = o.Height
	}
	if o.Colors != nil {
		m.Colors = o.Colors
	}
	return m
}

type Asset struct {
	ID                uuid.UUID
	CompanyID         uuid.UUID
	VersionID         uuid.UUID
	SubmodelID        *uuid.UUID
	Kind              AssetKind
	Status            AssetStatus
	StorageKey        string
	Filename          string
	ContentType       string
	DeclaredSizeBytes int64
	ActualSizeBytes   *int64
	Meta              AssetMeta
	SourceAssetID     *uuid.UUID
	ErrorMessage      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Downloads is only populated by GetAsset for READY assets.
	Downloads *AssetDownloads
}

type AssetDownloads struct {
	ModelURL     string
	ThumbnailURL string
	USDZURL      string
}

// Slot addresses the single active source model of a version or submodel.
type Slot struct {
	CompanyID  uuid.UUID
	VersionID  uuid.UUID
	SubmodelID *uuid.UUID
}

func (a Asset) Slot() Slot {
	return Slot{CompanyID: a.CompanyID, VersionID: a.VersionID, SubmodelID: a.SubmodelID}
}

// AssetStatusUpdate is a conditional write: it only applies while the stored
// status still equals From. Side fields are written as given.
type AssetStatusUpdate struct {
	ID              uuid.UUID
	From            AssetStatus
	To              AssetStatus
	ActualSizeBytes *int64
	Meta            AssetMeta
	ErrorMessage    *string
}

type ListAssetsOption struct {
	Skip   int
	Limit  int
	SortBy string
	SortIn string

	CompanyID     uuid.UUID
	VersionID     uuid.UUID
	SubmodelIDs   uuid.UUIDs
	Kinds         []AssetKind
	Statuses      []AssetStatus
	SourceAssetID uuid.UUID
}

// Scope is the tenant ownership of a version (and optional submodel).
type Scope struct {
	CompanyID  uuid.UUID
	VersionID  uuid.UUID
	SubmodelID *uuid.UUID
}
