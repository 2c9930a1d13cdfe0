package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fermata/model"
	"fermata/repository"
	"fermata/storage"
)

type slotKey struct {
	compositionID int64
	assetType     model.AssetType
}

// Manager enforces the single-writer slot rule: at most one upload attempt
// may be in flight per (composition, type) pair, and an occupied slot
// rejects new uploads until its asset is deleted.
type Manager struct {
	repo    repository.CompositionRepository
	store   storage.AssetStore
	maxSize int64

	mu       sync.Mutex
	inflight map[slotKey]struct{}
}

// NewManager creates an upload manager. maxSize <= 0 uses MaxAssetSize.
func NewManager(repo repository.CompositionRepository, store storage.AssetStore, maxSize int64) *Manager {
	if maxSize <= 0 {
		maxSize = MaxAssetSize
	}
	return &Manager{
		repo:     repo,
		store:    store,
		maxSize:  maxSize,
		inflight: make(map[slotKey]struct{}),
	}
}

func (m *Manager) acquire(key slotKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return ErrSlotBusy
	}
	m.inflight[key] = struct{}{}
	return nil
}

func (m *Manager) release(key slotKey) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}

// Upload runs one upload attempt against the given slot. It rejects when
// another attempt is in flight for the same slot or when the slot already
// holds an asset.
func (m *Manager) Upload(ctx context.Context, compositionID int64, assetType model.AssetType, candidate Candidate) (*model.Asset, error) {
	if !assetType.Valid() {
		return nil, fmt.Errorf("unknown asset type %q", assetType)
	}

	key := slotKey{compositionID: compositionID, assetType: assetType}
	if err := m.acquire(key); err != nil {
		return nil, err
	}
	defer m.release(key)

	existing, err := m.repo.FindAssetBySlot(ctx, compositionID, assetType)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSlotOccupied
	}

	session := NewSession(m.repo, m.store, compositionID, assetType, m.maxSize)
	return session.Upload(ctx, candidate)
}

// DeleteAsset removes an asset by id. Deleting an asset that no longer
// exists is a no-op success, mirroring the empty-slot delete.
func (m *Manager) DeleteAsset(ctx context.Context, assetID int64) error {
	if err := m.repo.DeleteAsset(ctx, assetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}
