package server

import (
	"time"

	"github.com/arvault/arvault/internal/usecase"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Asset struct {
	ID                string          `json:"id"`
	VersionID         string          `json:"version_id"`
	SubmodelID        *string         `json:"submodel_id,omitempty"`
	Kind              string          `json:"kind"`
	Status            string          `json:"status"`
	Filename          string          `json:"filename"`
	ContentType       string          `json:"content_type"`
	DeclaredSizeBytes int64           `json:"declared_size_bytes"`
	ActualSizeBytes   *int64          `json:"actual_size_bytes,omitempty"`
	Meta              AssetMeta       `json:"meta"`
	SourceAssetID     *string         `json:"source_asset_id,omitempty"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	Downloads         *AssetDownloads `json:"downloads,omitempty"`
}

type AssetMeta struct {
	GLBVersion        uint32     `json:"glb_version,omitzero"`
	GLBDeclaredLength uint32     `json:"glb_declared_length,omitzero"`
	SourceAssetID     *string    `json:"source_asset_id,omitempty"`
	ThumbnailAssetID  *string    `json:"thumbnail_asset_id,omitempty"`
	USDZAssetID       *string    `json:"usdz_asset_id,omitempty"`
	Width             int        `json:"width,omitzero"`
	Height            int        `json:"height,omitzero"`
	Colors            [][4]uint8 `json:"colors,omitempty"`
}

type AssetDownloads struct {
	ModelURL     string `json:"model_url"`
	ThumbnailURL string `json:"thumbnail_url,omitzero"`
	USDZURL      string `json:"usdz_url,omitzero"`
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toAsset(a usecase.Asset) Asset {
	asset := Asset{
		ID:                a.ID.String(),
		VersionID:         a.VersionID.String(),
		SubmodelID:        uuidString(a.SubmodelID),
		Kind:              string(a.Kind),
		Status:            string(a.Status),
		Filename:          a.Filename,
		ContentType:       a.ContentType,
		DeclaredSizeBytes: a.DeclaredSizeBytes,
		ActualSizeBytes:   a.ActualSizeBytes,
		Meta: AssetMeta{
			GLBVersion:        a.Meta.GLBVersion,
			GLBDeclaredLength: a.Meta.GLBDeclaredLength,
			SourceAssetID:     uuidString(a.Meta.SourceAssetID),
			ThumbnailAssetID:  uuidString(a.Meta.ThumbnailAssetID),
			USDZAssetID:       uuidString(a.Meta.USDZAssetID),
			Width:             a.Meta.Width,
			Height:            a.Meta.Height,
			Colors:            a.Meta.Colors,
		},
		SourceAssetID: uuidString(a.SourceAssetID),
		ErrorMessage:  a.ErrorMessage,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339),
	}
	if a.Downloads != nil {
		asset.Downloads = &AssetDownloads{
			ModelURL:     a.Downloads.ModelURL,
			ThumbnailURL: a.Downloads.ThumbnailURL,
			USDZURL:      a.Downloads.USDZURL,
		}
	}
	return asset
}

type UploadSlot struct {
	AssetID         string            `json:"asset_id"`
	UploadURL       string            `json:"upload_url"`
	Method          string            `json:"method"`
	RequiredHeaders map[string]string `json:"required_headers,omitempty"`
	ExpiresAt       string            `json:"expires_at"`
}

func toUploadSlot(s usecase.UploadSlot) UploadSlot {
	return UploadSlot{
		AssetID:         s.AssetID.String(),
		UploadURL:       s.Grant.URL,
		Method:          s.Grant.Method,
		RequiredHeaders: s.Grant.RequiredHeaders,
		ExpiresAt:       s.Grant.ExpiresAt.Format(time.RFC3339),
	}
}

type RequestUploadSlotRequest struct {
	VersionID   string `json:"version_id" validate:"required,uuid"`
	SubmodelID  string `json:"submodel_id" validate:"omitempty,uuid"`
	Kind        string `json:"kind" validate:"omitempty,oneof=SOURCE_MODEL OPTIMIZED_MODEL AR_INTERCHANGE THUMBNAIL"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

func (s *Server) RequestUploadSlot(ctx echo.Context) error {
	var req RequestUploadSlotRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(400, map[string]string{"error": err.Error()})
	}
	if err := s.validator.Struct(req); err != nil {
		return ctx.JSON(422, map[string]string{"error": err.Error()})
	}

	versionID, _ := uuid.Parse(req.VersionID)
	var submodelID *uuid.UUID
	if req.SubmodelID != "" {
		id, _ := uuid.Parse(req.SubmodelID)
		submodelID = &id
	}

	slot, err := s.server.RequestUploadSlot(ctx.Request().Context(), usecase.RequestUploadSlotInput{
		CompanyID:    companyFromContext(ctx),
		VersionID:    versionID,
		SubmodelID:   submodelID,
		Kind:         usecase.AssetKind(req.Kind),
		Filename:     req.Filename,
		ContentType:  req.ContentType,
		DeclaredSize: req.Size,
	})
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	return ctx.JSON(201, Res{Data: toUploadSlot(slot)})
}

type AssetIDRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

// bindAssetID writes the error response itself and reports false when the
// path id is unusable.
func (s *Server) bindAssetID(ctx echo.Context) (uuid.UUID, bool) {
	var req AssetIDRequest
	if err := ctx.Bind(&req); err != nil {
		_ = ctx.JSON(400, map[string]string{"error": err.Error()})
		return uuid.Nil, false
	}
	if err := s.validator.Struct(req); err != nil {
		_ = ctx.JSON(422, map[string]string{"error": err.Error()})
		return uuid.Nil, false
	}
	id, _ := uuid.Parse(req.ID)
	return id, true
}

func (s *Server) CompleteUpload(ctx echo.Context) error {
	id, ok := s.bindAssetID(ctx)
	if !ok {
		return nil
	}

	asset, err := s.server.CompleteUpload(ctx.Request().Context(), id, companyFromContext(ctx))
	if err != nil {
		return s.errorResponse(ctx, err, asset)
	}
	return ctx.JSON(200, Res{Data: toAsset(asset)})
}

func (s *Server) RetryUpload(ctx echo.Context) error {
	id, ok := s.bindAssetID(ctx)
	if !ok {
		return nil
	}

	slot, err := s.server.RetryUpload(ctx.Request().Context(), id, companyFromContext(ctx))
	if err != nil {
		return s.errorResponse(ctx, err)
	}
	return ctx.JSON(200, Res{Data: toUploadSlot(slot)})
}

func (s *Server) GetAsset(ctx echo.Context) error {
	id, ok := s.bindAssetID(ctx)
	if !ok {
		return nil
	}

	asset, err := s.server.GetAsset(ctx.Request().Context(), id, companyFromContext(ctx))
	if err != nil {
		return s.errorResponse(ctx, err)
	}
	return ctx.JSON(200, Res{Data: toAsset(asset)})
}

func (s *Server) DeleteAsset(ctx echo.Context) error {
	id, ok := s.bindAssetID(ctx)
	if !ok {
		return nil
	}

	if err := s.server.DeleteAsset(ctx.Request().Context(), id, companyFromContext(ctx)); err != nil {
		return s.errorResponse(ctx, err)
	}
	return ctx.NoContent(204)
}

type ListAssetsRequest struct {
	VersionID     string   `query:"version_id" validate:"omitempty,uuid"`
	SubmodelID    string   `query:"submodel_id" validate:"omitempty,uuid"`
	SourceAssetID string   `query:"source_asset_id" validate:"omitempty,uuid"`
	Kinds         []string `query:"kind" validate:"omitempty,dive,oneof=SOURCE_MODEL OPTIMIZED_MODEL AR_INTERCHANGE THUMBNAIL"`
	Statuses      []string `query:"status" validate:"omitempty,dive,oneof=PENDING_UPLOAD UPLOADED PROCESSING READY FAILED"`
	Skip          int      `query:"skip" validate:"gte=0"`
	Limit         int      `query:"limit" validate:"required,gte=1,lte=100"`
	SortBy        string   `query:"sort_by" validate:"omitempty,oneof=created_at updated_at filename status kind"`
	SortIn        string   `query:"sort_in" validate:"omitempty,oneof=asc desc"`
}

func (s *Server) ListAssets(ctx echo.Context) error {
	var req = ListAssetsRequest{Limit: 20}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(400, map[string]string{"error": err.Error()})
	}
	if err := s.validator.Struct(req); err != nil {
		return ctx.JSON(422, map[string]string{"error": err.Error()})
	}

	opt := usecase.ListAssetsOption{
		Skip:      req.Skip,
		Limit:     req.Limit,
		SortBy:    req.SortBy,
		SortIn:    req.SortIn,
		CompanyID: companyFromContext(ctx),
	}
	if req.VersionID != "" {
		opt.VersionID, _ = uuid.Parse(req.VersionID)
	}
	if req.SubmodelID != "" {
		id, _ := uuid.Parse(req.SubmodelID)
		opt.SubmodelIDs = append(opt.SubmodelIDs, id)
	}
	if req.SourceAssetID != "" {
		opt.SourceAssetID, _ = uuid.Parse(req.SourceAssetID)
	}
	for _, k := range req.Kinds {
		opt.Kinds = append(opt.Kinds, usecase.AssetKind(k))
	}
	for _, st := range req.Statuses {
		opt.Statuses = append(opt.Statuses, usecase.AssetStatus(st))
	}

	list, total, err := s.server.ListAssets(ctx.Request().Context(), opt)
	if err != nil {
		return s.errorResponse(ctx, err)
	}

	assets := make([]Asset, 0, len(list))
	for _, a := range list {
		assets = append(assets, toAsset(a))
	}

	return ctx.JSON(200, Res{
		Data: assets,
		Meta: &Meta{
			Total: total,
			Skip:  req.Skip,
			Limit: req.Limit,
		},
	})
}
