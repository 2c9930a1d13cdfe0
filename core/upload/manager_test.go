package upload

import (
	"context"
	"testing"

	"fermata/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRejectsConcurrentUploadOnSameSlot(t *testing.T) {
	repo := &fakeRepo{}
	store := &fakeStore{
		putStarted: make(chan struct{}),
		putRelease: make(chan struct{}),
	}
	m := NewManager(repo, store, 0)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Upload(context.Background(), 1, model.AssetPerformance, audioCandidate(1024))
		firstDone <- err
	}()

	<-store.putStarted // first attempt is mid-transfer

	_, err := m.Upload(context.Background(), 1, model.AssetPerformance, audioCandidate(1024))
	assert.ErrorIs(t, err, ErrSlotBusy)

	// a different slot on the same composition is independent
	_, err = m.Upload(context.Background(), 1, model.AssetSheetMusic, pdfCandidate(1024))
	require.NoError(t, err)

	close(store.putRelease)
	require.NoError(t, <-firstDone)
}

func TestManagerRejectsOccupiedSlot(t *testing.T) {
	repo := &fakeRepo{existing: &model.Asset{ID: 5, CompositionID: 1, Type: model.AssetPerformance}}
	store := &fakeStore{}
	m := NewManager(repo, store, 0)

	_, err := m.Upload(context.Background(), 1, model.AssetPerformance, audioCandidate(1024))
	assert.ErrorIs(t, err, ErrSlotOccupied)
	assert.Zero(t, repo.slotCalls)
}

func TestManagerRejectsUnknownAssetType(t *testing.T) {
	m := NewManager(&fakeRepo{}, &fakeStore{}, 0)
	_, err := m.Upload(context.Background(), 1, model.AssetType("coverArt"), audioCandidate(1024))
	require.Error(t, err)
}

func TestManagerSlotFreedAfterFailure(t *testing.T) {
	repo := &fakeRepo{failSlot: true}
	store := &fakeStore{}
	m := NewManager(repo, store, 0)

	_, err := m.Upload(context.Background(), 1, model.AssetPerformance, audioCandidate(1024))
	require.Error(t, err)

	repo.failSlot = false
	_, err = m.Upload(context.Background(), 1, model.AssetPerformance, audioCandidate(1024))
	require.NoError(t, err, "a failed attempt releases the slot for a new caller-initiated attempt")
}

func TestManagerDeleteAssetIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	m := NewManager(repo, &fakeStore{}, 0)

	require.NoError(t, m.DeleteAsset(context.Background(), 9))
	assert.Equal(t, []int64{9}, repo.deletedIDs)
}
