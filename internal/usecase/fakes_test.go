package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arvault/arvault/internal/artifact"
	"github.com/google/uuid"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memRepo struct {
	mu     sync.Mutex
	assets map[uuid.UUID]Asset
	clock  time.Time

	// updateErr, when set, is returned for updates into that status.
	updateErr map[AssetStatus]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		assets:    map[uuid.UUID]Asset{},
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		updateErr: map[AssetStatus]error{},
	}
}

func (r *memRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memRepo) Health() map[string]string { return map[string]string{"status": "up"} }
func (r *memRepo) Close() error              { return nil }

func (r *memRepo) CreateAsset(_ context.Context, a Asset) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := r.assets[a.ID]; ok {
		return Asset{}, ErrConflict{Code: "asset_exists", Message: "asset exists"}
	}
	now := r.tick()
	a.CreatedAt, a.UpdatedAt = now, now
	r.assets[a.ID] = a
	return a, nil
}

func (r *memRepo) GetAssetByID(_ context.Context, id uuid.UUID) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return Asset{}, assetNotFound(id)
	}
	return a, nil
}

func sameSubmodel(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memRepo) ListSlotAssets(_ context.Context, slot Slot, kind AssetKind) ([]Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.assets {
		if a.CompanyID == slot.CompanyID && a.VersionID == slot.VersionID &&
			sameSubmodel(a.SubmodelID, slot.SubmodelID) && a.Kind == kind {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListAssets(_ context.Context, opt ListAssetsOption) ([]Asset, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.assets {
		if a.CompanyID != opt.CompanyID {
			continue
		}
		if opt.VersionID != uuid.Nil && a.VersionID != opt.VersionID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *memRepo) ListAssetsBySource(_ context.Context, sourceID uuid.UUID) ([]Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.assets {
		if a.SourceAssetID != nil && *a.SourceAssetID == sourceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListStaleAssets(_ context.Context, status AssetStatus, before time.Time, limit int) ([]Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.assets {
		if a.Status == status && a.UpdatedAt.Before(before) {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) UpdateAssetStatus(_ context.Context, upd AssetStatusUpdate) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[upd.To]; err != nil {
		return Asset{}, err
	}
	a, ok := r.assets[upd.ID]
	if !ok {
		return Asset{}, assetNotFound(upd.ID)
	}
	if a.Status != upd.From {
		return Asset{}, ErrInvalidTransition{ID: upd.ID, From: upd.From, To: upd.To}
	}
	a.Status = upd.To
	a.ActualSizeBytes = upd.ActualSizeBytes
	a.Meta = upd.Meta
	a.ErrorMessage = upd.ErrorMessage
	a.UpdatedAt = r.tick()
	r.assets[a.ID] = a
	return a, nil
}

func (r *memRepo) DeleteAsset(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, id)
	return nil
}

// forceStatus bypasses the engine, for arranging test fixtures.
func (r *memRepo) forceStatus(id uuid.UUID, status AssetStatus, msg *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.assets[id]
	a.Status = status
	a.ErrorMessage = msg
	r.assets[id] = a
}

// statusShiftRepo moves every listed stale asset to status to before the
// caller gets the list, like a completion racing the sweeper.
type statusShiftRepo struct {
	*memRepo
	to AssetStatus
}

func (r statusShiftRepo) ListStaleAssets(ctx context.Context, status AssetStatus, before time.Time, limit int) ([]Asset, error) {
	out, err := r.memRepo.ListStaleAssets(ctx, status, before, limit)
	for _, a := range out {
		r.forceStatus(a.ID, r.to, nil)
	}
	return out, err
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	deleted []string

	statErr  error
	readErr  error
	putErr   error
	grantErr error
	// readBlock makes ReadRange wait for its context.
	readBlock bool
	// readGate, when set, holds ReadRange until closed. reading is signalled
	// once ReadRange is waiting on it.
	readGate chan struct{}
	reading  chan struct{}
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) CreateUploadGrant(_ context.Context, key, contentType string) (UploadGrant, error) {
	if s.grantErr != nil {
		return UploadGrant{}, s.grantErr
	}
	return UploadGrant{
		URL:             "https://store.test/" + key + "?sig=put",
		Method:          "PUT",
		RequiredHeaders: map[string]string{"Content-Type": contentType},
		ExpiresAt:       time.Now().Add(30 * time.Minute),
	}, nil
}

func (s *memStore) CreateDownloadGrant(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://store.test/" + key + "?sig=get", nil
}

func (s *memStore) StatObject(_ context.Context, key string) (ObjectStat, error) {
	if s.statErr != nil {
		return ObjectStat{}, s.statErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return ObjectStat{}, nil
	}
	return ObjectStat{Exists: true, SizeBytes: int64(len(b))}, nil
}

func (s *memStore) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if s.readBlock {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.readGate != nil {
		select {
		case s.reading <- struct{}{}:
		default:
		}
		select {
		case <-s.readGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	if end >= int64(len(b)) {
		end = int64(len(b)) - 1
	}
	return append([]byte(nil), b[start:end+1]...), nil
}

func (s *memStore) PutObject(_ context.Context, key string, data []byte, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return nil
}

func (s *memStore) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type memScopes map[uuid.UUID]Scope

func (m memScopes) ResolveScope(_ context.Context, versionID uuid.UUID, submodelID *uuid.UUID) (Scope, error) {
	s, ok := m[versionID]
	if !ok {
		return Scope{}, scopeNotFound(versionID)
	}
	s.SubmodelID = submodelID
	return s, nil
}

type stubThumbnailer struct {
	err error
}

func (t stubThumbnailer) Generate(context.Context, artifact.ThumbnailInput) (artifact.Thumbnail, error) {
	if t.err != nil {
		return artifact.Thumbnail{}, t.err
	}
	return artifact.Thumbnail{PNG: []byte("\x89PNG thumb"), Width: 512, Height: 512}, nil
}

type stubConverter struct {
	out   []byte
	err   error
	panic bool
	calls int
}

func (c *stubConverter) Convert(context.Context, []byte) ([]byte, error) {
	c.calls++
	if c.panic {
		panic("converter exploded")
	}
	return c.out, c.err
}

type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

var errStoreDown = errors.New("dial tcp: connection refused")
