package database

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/arvault/arvault/internal/usecase"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Asset struct {
	ID                uuid.UUID      `gorm:"column:id;primaryKey;type:uuid"`
	CompanyID         uuid.UUID      `gorm:"column:company_id;type:uuid;not null;index:idx_assets_slot"`
	VersionID         uuid.UUID      `gorm:"column:version_id;type:uuid;not null;index:idx_assets_slot"`
	SubmodelID        *uuid.UUID     `gorm:"column:submodel_id;type:uuid;index:idx_assets_slot"`
	Kind              string         `gorm:"column:kind;type:varchar(32);not null;index"`
	Status            string         `gorm:"column:status;type:varchar(32);not null;index"`
	StorageKey        string         `gorm:"column:storage_key;type:varchar(1024);not null"`
	Filename          string         `gorm:"column:filename;type:varchar(255);not null"`
	ContentType       string         `gorm:"column:content_type;type:varchar(255);not null"`
	DeclaredSizeBytes int64          `gorm:"column:declared_size_bytes;not null"`
	ActualSizeBytes   *int64         `gorm:"column:actual_size_bytes"`
	Meta              datatypes.JSON `gorm:"column:meta"`
	SourceAssetID     *uuid.UUID     `gorm:"column:source_asset_id;type:uuid;index"`
	ErrorMessage      *string        `gorm:"column:error_message;type:text"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;index"`
}

func (Asset) TableName() string {
	return "assets"
}

func (a *Asset) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

var errSlotOccupied = usecase.ErrConflict{
	Code:    "asset_slot_occupied",
	Message: "version already has an active source model",
}

func (s *service) CreateAsset(ctx context.Context, asset usecase.Asset) (usecase.Asset, error) {
	meta, err := json.Marshal(asset.Meta)
	if err != nil {
		return usecase.Asset{}, err
	}

	a := Asset{
		ID:                asset.ID,
		CompanyID:         asset.CompanyID,
		VersionID:         asset.VersionID,
		SubmodelID:        asset.SubmodelID,
		Kind:              string(asset.Kind),
		Status:            string(asset.Status),
		StorageKey:        asset.StorageKey,
		Filename:          asset.Filename,
		ContentType:       asset.ContentType,
		DeclaredSizeBytes: asset.DeclaredSizeBytes,
		ActualSizeBytes:   asset.ActualSizeBytes,
		Meta:              datatypes.JSON(meta),
		SourceAssetID:     asset.SourceAssetID,
		ErrorMessage:      asset.ErrorMessage,
	}

	err = s.db.WithContext(ctx).Create(&a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return usecase.Asset{}, errSlotOccupied
	}
	if err != nil {
		return usecase.Asset{}, err
	}
	return a.ConvertToUsecase()
}

func (s *service) GetAssetByID(ctx context.Context, id uuid.UUID) (usecase.Asset, error) {
	var a Asset

	err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usecase.Asset{}, usecase.ErrNotFound{
			ID:      id,
			Code:    "asset_not_found",
			Message: "asset " + id.String() + " not found",
		}
	}
	if err != nil {
		return usecase.Asset{}, err
	}
	return a.ConvertToUsecase()
}

func (s *service) ListSlotAssets(ctx context.Context, slot usecase.Slot, kind usecase.AssetKind) ([]usecase.Asset, error) {
	var assets []Asset

	db := s.db.WithContext(ctx).
		Where("company_id = ? AND version_id = ? AND kind = ?", slot.CompanyID, slot.VersionID, string(kind))
	if slot.SubmodelID == nil {
		db = db.Where("submodel_id IS NULL")
	} else {
		db = db.Where("submodel_id = ?", *slot.SubmodelID)
	}

	if err := db.Order("created_at").Find(&assets).Error; err != nil {
		return nil, err
	}
	return convertAssets(assets)
}

var assetSortColumns = []string{"created_at", "updated_at", "filename", "status", "kind"}

func (s *service) ListAssets(ctx context.Context, opt usecase.ListAssetsOption) ([]usecase.Asset, int, error) {
	var (
		assets []Asset
		count  int64
	)

	db := s.db.Model([]Asset{}).WithContext(ctx).Where("company_id = ?", opt.CompanyID)

	if opt.VersionID != uuid.Nil {
		db = db.Where("version_id = ?", opt.VersionID)
	}
	if len(opt.SubmodelIDs) > 0 {
		db = db.Where("submodel_id IN ?", opt.SubmodelIDs)
	}
	if len(opt.Kinds) > 0 {
		db = db.Where("kind IN ?", opt.Kinds)
	}
	if len(opt.Statuses) > 0 {
		db = db.Where("status IN ?", opt.Statuses)
	}
	if opt.SourceAssetID != uuid.Nil {
		db = db.Where("source_asset_id = ?", opt.SourceAssetID)
	}

	orderIn := opt.SortIn == "desc"
	if !slices.Contains(assetSortColumns, opt.SortBy) {
		opt.SortBy = "created_at"
	}

	err := db.
		Count(&count).
		Order(clause.OrderByColumn{Column: clause.Column{Name: opt.SortBy}, Desc: orderIn}).
		Limit(opt.Limit).
		Offset(opt.Skip).
		Find(&assets).
		Error
	if err != nil {
		return nil, 0, err
	}

	uassets, err := convertAssets(assets)
	if err != nil {
		return nil, 0, err
	}
	return uassets, int(count), nil
}

func (s *service) ListAssetsBySource(ctx context.Context, sourceID uuid.UUID) ([]usecase.Asset, error) {
	var assets []Asset

	err := s.db.WithContext(ctx).
		Where("source_asset_id = ?", sourceID).
		Order("created_at").
		Find(&assets).
		Error
	if err != nil {
		return nil, err
	}
	return convertAssets(assets)
}

func (s *service) ListStaleAssets(ctx context.Context, status usecase.AssetStatus, before time.Time, limit int) ([]usecase.Asset, error) {
	var assets []Asset

	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), before).
		Order("updated_at").
		Limit(limit).
		Find(&assets).
		Error
	if err != nil {
		return nil, err
	}
	return convertAssets(assets)
}

// UpdateAssetStatus applies upd only while the row is still in upd.From.
func (s *service) UpdateAssetStatus(ctx context.Context, upd usecase.AssetStatusUpdate) (usecase.Asset, error) {
	meta, err := json.Marshal(upd.Meta)
	if err != nil {
		return usecase.Asset{}, err
	}

	res := s.db.WithContext(ctx).
		Model(&Asset{}).
		Where("id = ? AND status = ?", upd.ID, string(upd.From)).
		Updates(map[string]any{
			"status":            string(upd.To),
			"actual_size_bytes": upd.ActualSizeBytes,
			"meta":              datatypes.JSON(meta),
			"error_message":     upd.ErrorMessage,
			"updated_at":        time.Now(),
		})
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		// reviving a FAILED source while another one took the slot
		return usecase.Asset{}, errSlotOccupied
	}
	if res.Error != nil {
		return usecase.Asset{}, res.Error
	}

	current, err := s.GetAssetByID(ctx, upd.ID)
	if err != nil {
		return usecase.Asset{}, err
	}
	if res.RowsAffected == 0 {
		return current, usecase.ErrInvalidTransition{ID: upd.ID, From: current.Status, To: upd.To}
	}
	return current, nil
}

func (s *service) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&Asset{}).Error
}

func convertAssets(assets []Asset) ([]usecase.Asset, error) {
	uassets := make([]usecase.Asset, 0, len(assets))
	for _, a := range assets {
		ua, err := a.ConvertToUsecase()
		if err != nil {
			return nil, err
		}
		uassets = append(uassets, ua)
	}
	return uassets, nil
}

// Convert core model to Usecase
func (a Asset) ConvertToUsecase() (usecase.Asset, error) {
	var meta usecase.AssetMeta
	if len(a.Meta) > 0 {
		if err := json.Unmarshal(a.Meta, &meta); err != nil {
			return usecase.Asset{}, err
		}
	}
	return usecase.Asset{
		ID:                a.ID,
		CompanyID:         a.CompanyID,
		VersionID:         a.VersionID,
		SubmodelID:        a.SubmodelID,
		Kind:              usecase.AssetKind(a.Kind),
		Status:            usecase.AssetStatus(a.Status),
		StorageKey:        a.StorageKey,
		Filename:          a.Filename,
		ContentType:       a.ContentType,
		DeclaredSizeBytes: a.DeclaredSizeBytes,
		ActualSizeBytes:   a.ActualSizeBytes,
		Meta:              meta,
		SourceAssetID:     a.SourceAssetID,
		ErrorMessage:      a.ErrorMessage,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}, nil
}
