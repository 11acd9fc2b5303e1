package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arvault/arvault/internal/artifact"
	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/glb"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	msgFileNotFound   = "file not found after upload"
	msgUploadExpired  = "upload window expired before the upload was completed"
	staleSweepBatch   = 100
	objectDeleteLimit = 4
)

type RequestUploadSlotInput struct {
	CompanyID    uuid.UUID
	VersionID    uuid.UUID
	SubmodelID   *uuid.UUID
	Kind         AssetKind
	Filename     string
	ContentType  string
	DeclaredSize int64
}

type UploadSlot struct {
	AssetID uuid.UUID
	Grant   UploadGrant
}

// RequestUploadSlot creates a PENDING_UPLOAD source asset and returns a write
// grant for the client to upload the model directly to the object store.
func (u Usecase) RequestUploadSlot(ctx context.Context, in RequestUploadSlotInput) (UploadSlot, error) {
	if in.Kind == "" {
		in.Kind = AssetKindSourceModel
	}
	if in.Kind != AssetKindSourceModel {
		return UploadSlot{}, ErrValidation{Field: "kind", Message: "only SOURCE_MODEL assets can be uploaded"}
	}
	if in.ContentType != config.MODEL_CONTENT_TYPE {
		return UploadSlot{}, ErrValidation{
			Field:   "content_type",
			Message: fmt.Sprintf("unsupported content type %q, expected %s", in.ContentType, config.MODEL_CONTENT_TYPE),
		}
	}
	if in.DeclaredSize <= 0 {
		return UploadSlot{}, ErrValidation{Field: "size", Message: "declared size must be positive"}
	}
	if in.DeclaredSize > config.MAX_MODEL_SIZE_BYTES {
		return UploadSlot{}, ErrValidation{
			Field:   "size",
			Message: fmt.Sprintf("declared size %d exceeds the limit of %d bytes", in.DeclaredSize, config.MAX_MODEL_SIZE_BYTES),
		}
	}
	if in.Filename == "" {
		return UploadSlot{}, ErrValidation{Field: "filename", Message: "filename is required"}
	}

	scope, err := u.scopeResolver.ResolveScope(ctx, in.VersionID, in.SubmodelID)
	if err != nil {
		return UploadSlot{}, err
	}
	if scope.CompanyID != in.CompanyID {
		return UploadSlot{}, scopeNotFound(in.VersionID)
	}

	slot := Slot{CompanyID: in.CompanyID, VersionID: in.VersionID, SubmodelID: in.SubmodelID}
	if err := u.ensureSlotFree(ctx, slot, uuid.Nil); err != nil {
		return UploadSlot{}, err
	}

	id := uuid.New()
	asset, err := u.repo.CreateAsset(ctx, Asset{
		ID:                id,
		CompanyID:         in.CompanyID,
		VersionID:         in.VersionID,
		SubmodelID:        in.SubmodelID,
		Kind:              in.Kind,
		Status:            AssetStatusPendingUpload,
		StorageKey:        StorageKey(in.CompanyID, in.VersionID, in.Kind, in.SubmodelID, id, in.Filename),
		Filename:          in.Filename,
		ContentType:       in.ContentType,
		DeclaredSizeBytes: in.DeclaredSize,
	})
	if err != nil {
		return UploadSlot{}, err
	}

	grant, err := u.fileStorageProvider.CreateUploadGrant(ctx, asset.StorageKey, asset.ContentType)
	if err != nil {
		// a record without a grant would occupy the slot
		if derr := u.repo.DeleteAsset(context.WithoutCancel(ctx), asset.ID); derr != nil {
			u.logger.ErrorContext(ctx, "failed to remove asset after grant failure",
				slog.String("asset_id", asset.ID.String()), slog.String("err", derr.Error()))
		}
		return UploadSlot{}, infraErr("create upload grant", err)
	}

	u.logger.InfoContext(ctx, "upload slot created",
		slog.String("asset_id", asset.ID.String()),
		slog.String("version_id", asset.VersionID.String()),
		slog.Int64("declared_size", asset.DeclaredSizeBytes),
	)

	return UploadSlot{AssetID: asset.ID, Grant: grant}, nil
}

// CompleteUpload verifies the uploaded object and runs the processing
// pipeline synchronously. Verification and validation failures are recorded
// on the asset and returned as ErrProcessingFailed together with the FAILED
// snapshot. Store errors before the upload is verified leave the asset
// untouched so the call can be retried.
func (u Usecase) CompleteUpload(ctx context.Context, id, companyID uuid.UUID) (Asset, error) {
	ctx, span := u.tracer.Start(ctx, "asset.complete_upload", trace.WithAttributes(
		attribute.String("asset.id", id.String()),
	))
	defer span.End()

	unlock, err := u.lockAsset(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Asset{}, err
	}
	defer unlock()

	asset, err := u.getOwnedAsset(ctx, id, companyID)
	if err != nil {
		return Asset{}, err
	}
	if asset.Status != AssetStatusPendingUpload {
		return asset, ErrInvalidTransition{ID: asset.ID, From: asset.Status, To: AssetStatusUploaded}
	}

	stat, err := u.fileStorageProvider.StatObject(ctx, asset.StorageKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return asset, infraErr("stat object", err)
	}
	if !stat.Exists {
		return u.rejectAsset(ctx, asset.ID, msgFileNotFound)
	}
	if !glb.WithinTolerance(asset.DeclaredSizeBytes, stat.SizeBytes) {
		return u.rejectAsset(ctx, asset.ID, fmt.Sprintf(
			"uploaded size mismatch: declared %d bytes but store reports %d bytes",
			asset.DeclaredSizeBytes, stat.SizeBytes,
		))
	}

	size := stat.SizeBytes
	asset, err = u.transition(ctx, asset, AssetStatusUploaded, func(upd *AssetStatusUpdate) {
		upd.ActualSizeBytes = &size
	})
	if err != nil {
		return asset, err
	}

	asset, err = u.processAsset(ctx, asset)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return asset, err
}

// processAsset validates the GLB header and produces derived artifacts. It
// is only called right after a successful CompleteUpload.
func (u Usecase) processAsset(ctx context.Context, asset Asset) (Asset, error) {
	ctx, span := u.tracer.Start(ctx, "asset.process")
	defer span.End()

	// outcomes must be recorded even if the request goes away
	recordCtx := context.WithoutCancel(ctx)

	processing, err := u.transition(ctx, asset, AssetStatusProcessing, nil)
	if err != nil {
		var it ErrInvalidTransition
		if errors.As(err, &it) {
			return processing, err
		}
		return u.rejectAsset(recordCtx, asset.ID, fmt.Sprintf("could not start processing: %s", err))
	}

	// a client disconnect does not abort a verified upload; only the
	// processing budget bounds the pipeline
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.opt.ProcessingTimeout)
	defer cancel()

	ready, err := u.runPipeline(pctx, processing)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("processing timed out after %s", u.opt.ProcessingTimeout)
		}
		span.SetStatus(codes.Error, msg)
		return u.rejectAsset(recordCtx, processing.ID, msg)
	}
	return ready, nil
}

func (u Usecase) runPipeline(ctx context.Context, asset Asset) (Asset, error) {
	if asset.ActualSizeBytes == nil {
		return asset, errors.New("actual size unknown after upload verification")
	}
	size := *asset.ActualSizeBytes

	header, err := u.fileStorageProvider.ReadRange(ctx, asset.StorageKey, 0, glb.HeaderSize-1)
	if err != nil {
		return asset, fmt.Errorf("read GLB header: %w", err)
	}

	res := glb.Validate(header, size)
	if !res.Valid {
		return asset, res.Err
	}

	meta := AssetMeta{
		GLBVersion:        res.Version,
		GLBDeclaredLength: res.DeclaredLength,
	}
	if thumb, ok := u.generateThumbnail(ctx, asset); ok {
		meta.ThumbnailAssetID = &thumb.ID
	}
	if usdz, ok := u.generateUSDZ(ctx, asset, size); ok {
		meta.USDZAssetID = &usdz.ID
	}
	if err := ctx.Err(); err != nil {
		return asset, err
	}

	return u.transition(ctx, asset, AssetStatusReady, func(upd *AssetStatusUpdate) {
		upd.Meta = upd.Meta.Merge(meta)
	})
}

// generateThumbnail is best-effort: any failure is logged and yields no
// thumbnail.
func (u Usecase) generateThumbnail(ctx context.Context, source Asset) (Asset, bool) {
	if u.thumbnailer == nil {
		return Asset{}, false
	}
	thumb, err := u.thumbnailer.Generate(ctx, artifact.ThumbnailInput{Filename: source.Filename})
	if err != nil {
		u.logger.WarnContext(ctx, "thumbnail generation failed",
			slog.String("asset_id", source.ID.String()), slog.String("err", err.Error()))
		return Asset{}, false
	}

	child, err := u.storeDerived(ctx, source, AssetKindThumbnail, "thumbnail.png", artifact.ThumbnailContentType, thumb.PNG, AssetMeta{
		Width:  thumb.Width,
		Height: thumb.Height,
		Colors: thumb.Colors,
	})
	if err != nil {
		u.logger.WarnContext(ctx, "thumbnail upload failed",
			slog.String("asset_id", source.ID.String()), slog.String("err", err.Error()))
		return Asset{}, false
	}
	return child, true
}

// generateUSDZ is best-effort and isolated: the converter runs out of
// process and nothing it does can fail the source asset.
func (u Usecase) generateUSDZ(ctx context.Context, source Asset, size int64) (Asset, bool) {
	if u.converter == nil {
		return Asset{}, false
	}
	if _, disabled := u.converter.(artifact.NoopConverter); disabled {
		return Asset{}, false
	}
	if size > u.opt.USDZMaxSourceBytes {
		u.logger.InfoContext(ctx, "usdz conversion skipped for large model",
			slog.String("asset_id", source.ID.String()), slog.Int64("size", size))
		return Asset{}, false
	}

	data, err := u.fileStorageProvider.ReadRange(ctx, source.StorageKey, 0, size-1)
	if err != nil {
		u.logger.WarnContext(ctx, "usdz conversion skipped, source not readable",
			slog.String("asset_id", source.ID.String()), slog.String("err", err.Error()))
		return Asset{}, false
	}

	out, ok := artifact.SafeConvert(ctx, u.logger.With(slog.String("asset_id", source.ID.String())), u.converter, data)
	if !ok {
		return Asset{}, false
	}

	child, err := u.storeDerived(ctx, source, AssetKindARInterchange, "model.usdz", artifact.USDZContentType, out, AssetMeta{})
	if err != nil {
		u.logger.WarnContext(ctx, "usdz upload failed",
			slog.String("asset_id", source.ID.String()), slog.String("err", err.Error()))
		return Asset{}, false
	}
	return child, true
}

// storeDerived uploads an artifact and records it as a READY child of
// source. Derived assets are created READY because their bytes are already
// durable when the record is written.
func (u Usecase) storeDerived(ctx context.Context, source Asset, kind AssetKind, filename, contentType string, data []byte, meta AssetMeta) (Asset, error) {
	id := uuid.New()
	key := StorageKey(source.CompanyID, source.VersionID, kind, source.SubmodelID, id, filename)

	if err := u.fileStorageProvider.PutObject(ctx, key, data, contentType); err != nil {
		return Asset{}, infraErr("put object", err)
	}

	size := int64(len(data))
	sourceID := source.ID
	meta.SourceAssetID = &sourceID

	child, err := u.repo.CreateAsset(ctx, Asset{
		ID:                id,
		CompanyID:         source.CompanyID,
		VersionID:         source.VersionID,
		SubmodelID:        source.SubmodelID,
		Kind:              kind,
		Status:            AssetStatusReady,
		StorageKey:        key,
		Filename:          filename,
		ContentType:       contentType,
		DeclaredSizeBytes: size,
		ActualSizeBytes:   &size,
		Meta:              meta,
		SourceAssetID:     &sourceID,
	})
	if err != nil {
		if derr := u.fileStorageProvider.DeleteObject(context.WithoutCancel(ctx), key); derr != nil {
			u.logger.WarnContext(ctx, "failed to remove orphaned artifact",
				slog.String("key", key), slog.String("err", derr.Error()))
		}
		return Asset{}, err
	}
	return child, nil
}

// RetryUpload re-enters a FAILED source asset into PENDING_UPLOAD and issues
// a fresh upload grant for the same record.
func (u Usecase) RetryUpload(ctx context.Context, id, companyID uuid.UUID) (UploadSlot, error) {
	asset, err := u.getOwnedAsset(ctx, id, companyID)
	if err != nil {
		return UploadSlot{}, err
	}
	if asset.Kind != AssetKindSourceModel {
		return UploadSlot{}, ErrValidation{Field: "kind", Message: "only SOURCE_MODEL assets can be re-uploaded"}
	}
	if !asset.Status.CanTransitionTo(AssetStatusPendingUpload) {
		return UploadSlot{}, ErrInvalidTransition{ID: asset.ID, From: asset.Status, To: AssetStatusPendingUpload}
	}
	if err := u.ensureSlotFree(ctx, asset.Slot(), asset.ID); err != nil {
		return UploadSlot{}, err
	}
	if err := u.deleteLineage(ctx, asset.ID); err != nil {
		return UploadSlot{}, err
	}

	asset, err = u.transition(ctx, asset, AssetStatusPendingUpload, func(upd *AssetStatusUpdate) {
		upd.ActualSizeBytes = nil
		upd.Meta = AssetMeta{}
	})
	if err != nil {
		return UploadSlot{}, err
	}

	grant, err := u.fileStorageProvider.CreateUploadGrant(ctx, asset.StorageKey, asset.ContentType)
	if err != nil {
		return UploadSlot{}, infraErr("create upload grant", err)
	}
	return UploadSlot{AssetID: asset.ID, Grant: grant}, nil
}

// GetAsset returns the asset with download grants when it is READY.
func (u Usecase) GetAsset(ctx context.Context, id, companyID uuid.UUID) (Asset, error) {
	asset, err := u.getOwnedAsset(ctx, id, companyID)
	if err != nil {
		return Asset{}, err
	}
	if asset.Status != AssetStatusReady {
		return asset, nil
	}

	var dl AssetDownloads
	dl.ModelURL, err = u.fileStorageProvider.CreateDownloadGrant(ctx, asset.StorageKey, u.opt.DownloadGrantTTL)
	if err != nil {
		return Asset{}, infraErr("create download grant", err)
	}
	if dl.ThumbnailURL, err = u.derivedDownload(ctx, asset.Meta.ThumbnailAssetID); err != nil {
		return Asset{}, err
	}
	if dl.USDZURL, err = u.derivedDownload(ctx, asset.Meta.USDZAssetID); err != nil {
		return Asset{}, err
	}
	asset.Downloads = &dl
	return asset, nil
}

func (u Usecase) derivedDownload(ctx context.Context, id *uuid.UUID) (string, error) {
	if id == nil {
		return "", nil
	}
	child, err := u.repo.GetAssetByID(ctx, *id)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if child.Status != AssetStatusReady {
		return "", nil
	}
	url, err := u.fileStorageProvider.CreateDownloadGrant(ctx, child.StorageKey, u.opt.DownloadGrantTTL)
	if err != nil {
		return "", infraErr("create download grant", err)
	}
	return url, nil
}

func (u Usecase) ListAssets(ctx context.Context, opt ListAssetsOption) ([]Asset, int, error) {
	if opt.CompanyID == uuid.Nil {
		return nil, 0, ErrValidation{Field: "company_id", Message: "company is required"}
	}
	return u.repo.ListAssets(ctx, opt)
}

// DeleteAsset removes the asset and every asset derived from it. Stored
// objects are removed afterwards on a best-effort basis.
func (u Usecase) DeleteAsset(ctx context.Context, id, companyID uuid.UUID) error {
	asset, err := u.getOwnedAsset(ctx, id, companyID)
	if err != nil {
		return err
	}

	children, err := u.repo.ListAssetsBySource(ctx, asset.ID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(children)+1)
	for _, c := range children {
		if err := u.repo.DeleteAsset(ctx, c.ID); err != nil {
			return err
		}
		keys = append(keys, c.StorageKey)
	}
	if err := u.repo.DeleteAsset(ctx, asset.ID); err != nil {
		return err
	}
	keys = append(keys, asset.StorageKey)

	u.deleteObjects(context.WithoutCancel(ctx), keys)

	u.logger.InfoContext(ctx, "asset deleted",
		slog.String("asset_id", asset.ID.String()), slog.Int("derived", len(children)))
	return nil
}

func (u Usecase) deleteLineage(ctx context.Context, sourceID uuid.UUID) error {
	children, err := u.repo.ListAssetsBySource(ctx, sourceID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(children))
	for _, c := range children {
		if err := u.repo.DeleteAsset(ctx, c.ID); err != nil {
			return err
		}
		keys = append(keys, c.StorageKey)
	}
	u.deleteObjects(context.WithoutCancel(ctx), keys)
	return nil
}

func (u Usecase) deleteObjects(ctx context.Context, keys []string) {
	var g errgroup.Group
	g.SetLimit(objectDeleteLimit)
	for _, key := range keys {
		g.Go(func() error {
			if err := u.fileStorageProvider.DeleteObject(ctx, key); err != nil {
				u.logger.WarnContext(ctx, "failed to delete object",
					slog.String("key", key), slog.String("err", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ExpireStaleUploads fails PENDING_UPLOAD assets whose upload grant expired
// long ago, freeing their slots. It returns the number of assets failed.
func (u Usecase) ExpireStaleUploads(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := u.repo.ListStaleAssets(ctx, AssetStatusPendingUpload, u.now().Add(-olderThan), staleSweepBatch)
	if err != nil {
		return 0, err
	}

	var expired int
	for _, a := range stale {
		unlock, err := u.lockAsset(ctx, a.ID)
		if err != nil {
			// being completed right now
			continue
		}
		// conditional on the listed status
		_, err = u.transition(ctx, a, AssetStatusFailed, func(upd *AssetStatusUpdate) {
			msg := msgUploadExpired
			upd.ErrorMessage = &msg
		})
		unlock()
		if err != nil {
			var it ErrInvalidTransition
			if errors.As(err, &it) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (u Usecase) getOwnedAsset(ctx context.Context, id, companyID uuid.UUID) (Asset, error) {
	asset, err := u.repo.GetAssetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	// other tenants get the same answer as for a missing asset
	if asset.CompanyID != companyID {
		return Asset{}, assetNotFound(id)
	}
	return asset, nil
}

// ensureSlotFree rejects when the slot already holds a source asset that is
// not FAILED. except is ignored, for re-entry of an existing asset.
func (u Usecase) ensureSlotFree(ctx context.Context, slot Slot, except uuid.UUID) error {
	existing, err := u.repo.ListSlotAssets(ctx, slot, AssetKindSourceModel)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if a.ID == except || a.Status == AssetStatusFailed {
			continue
		}
		return ErrConflict{
			Code:    "asset_slot_occupied",
			Message: fmt.Sprintf("version already has an active source model %s in status %s", a.ID, a.Status),
		}
	}
	return nil
}

func (u Usecase) lockAsset(ctx context.Context, id uuid.UUID) (func(), error) {
	if u.locker == nil {
		return func() {}, nil
	}
	unlock, acquired, err := u.locker.TryLock(ctx, "asset:"+id.String(), u.opt.LockTTL)
	if err != nil {
		return nil, infraErr("acquire asset lock", err)
	}
	if !acquired {
		return nil, ErrConflict{Code: "asset_busy", Message: "asset " + id.String() + " is already being processed"}
	}
	return unlock, nil
}

// transition moves asset to status to. mutate may adjust the side fields
// written with the status; the error message is managed here.
func (u Usecase) transition(ctx context.Context, asset Asset, to AssetStatus, mutate func(*AssetStatusUpdate)) (Asset, error) {
	if !asset.Status.CanTransitionTo(to) {
		return asset, ErrInvalidTransition{ID: asset.ID, From: asset.Status, To: to}
	}

	upd := AssetStatusUpdate{
		ID:              asset.ID,
		From:            asset.Status,
		To:              to,
		ActualSizeBytes: asset.ActualSizeBytes,
		Meta:            asset.Meta,
	}
	if mutate != nil {
		mutate(&upd)
	}
	if to != AssetStatusFailed {
		upd.ErrorMessage = nil
	}

	updated, err := u.repo.UpdateAssetStatus(ctx, upd)
	if err != nil {
		return asset, err
	}

	u.logger.InfoContext(ctx, "asset status changed",
		slog.String("asset_id", asset.ID.String()),
		slog.String("from", string(upd.From)),
		slog.String("to", string(to)),
	)
	if to == AssetStatusReady || to == AssetStatusFailed {
		u.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(asset.Kind)),
			attribute.String("status", string(to)),
		))
	}
	return updated, nil
}

// failAsset records msg on the asset. It keeps the first failure: an asset
// that is already FAILED is returned unchanged.
func (u Usecase) failAsset(ctx context.Context, id uuid.UUID, msg string) (Asset, error) {
	for attempt := 0; attempt < 2; attempt++ {
		asset, err := u.repo.GetAssetByID(ctx, id)
		if err != nil {
			return Asset{}, err
		}
		if asset.Status == AssetStatusFailed {
			return asset, nil
		}

		failed, err := u.transition(ctx, asset, AssetStatusFailed, func(upd *AssetStatusUpdate) {
			upd.ErrorMessage = &msg
		})
		var it ErrInvalidTransition
		if errors.As(err, &it) && asset.Status.CanTransitionTo(AssetStatusFailed) {
			// status moved underneath us, look again
			continue
		}
		return failed, err
	}
	return u.repo.GetAssetByID(ctx, id)
}

// rejectAsset fails the asset and reports the recorded reason to the caller.
func (u Usecase) rejectAsset(ctx context.Context, id uuid.UUID, msg string) (Asset, error) {
	failed, err := u.failAsset(ctx, id, msg)
	if err != nil {
		return failed, err
	}
	reason := msg
	if failed.ErrorMessage != nil {
		reason = *failed.ErrorMessage
	}
	u.logger.WarnContext(ctx, "asset processing failed",
		slog.String("asset_id", id.String()), slog.String("reason", reason))
	return failed, ErrProcessingFailed{ID: id, Message: reason}
}

func assetNotFound(id uuid.UUID) ErrNotFound {
	return ErrNotFound{ID: id, Code: "asset_not_found", Message: "asset " + id.String() + " not found"}
}

func scopeNotFound(versionID uuid.UUID) ErrNotFound {
	return ErrNotFound{ID: versionID, Code: "version_not_found", Message: "version " + versionID.String() + " not found"}
}
