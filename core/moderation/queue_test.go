package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"fermata/model"
	"fermata/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo implements repository.CompositionRepository in memory. Approval
// state is tracked per id: a nil value means pending.
type fakeRepo struct {
	pending   []model.CompositionSummary
	approvals map[int64]*bool

	failList bool
	failSet  bool

	setCalls int
	batches  [][]int64
}

func newFakeRepo(ids ...int64) *fakeRepo {
	r := &fakeRepo{approvals: make(map[int64]*bool)}
	for _, id := range ids {
		r.pending = append(r.pending, model.CompositionSummary{ID: id})
		r.approvals[id] = nil
	}
	return r
}

func (r *fakeRepo) ListPendingCompositions(ctx context.Context) ([]model.CompositionSummary, error) {
	if r.failList {
		return nil, errors.New("list failed")
	}
	return append([]model.CompositionSummary(nil), r.pending...), nil
}

func (r *fakeRepo) SetApproval(ctx context.Context, compositionID int64, approved *bool) error {
	return r.SetApprovalMany(ctx, []int64{compositionID}, approved)
}

func (r *fakeRepo) SetApprovalMany(ctx context.Context, compositionIDs []int64, approved *bool) error {
	r.setCalls++
	r.batches = append(r.batches, append([]int64(nil), compositionIDs...))
	if r.failSet {
		return errors.New("set failed")
	}
	for _, id := range compositionIDs {
		if _, ok := r.approvals[id]; !ok {
			return errors.New("unknown composition")
		}
	}
	for _, id := range compositionIDs {
		r.approvals[id] = approved
	}
	return nil
}

func (r *fakeRepo) CreateUploadSlot(ctx context.Context, compositionID int64, fileName, mediaType string) (*model.UploadSlot, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepo) RecordAsset(ctx context.Context, compositionID int64, name string, assetType model.AssetType, objectKey, url string) (*model.Asset, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepo) FindAssetBySlot(ctx context.Context, compositionID int64, assetType model.AssetType) (*model.Asset, error) {
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) DeleteAsset(ctx context.Context, assetID int64) error {
	return errors.New("not implemented")
}

func snapshotIDs(items []model.CompositionSummary) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestLoadPendingReplacesSnapshot(t *testing.T) {
	repo := newFakeRepo(1, 2, 3)
	q := NewQueue(repo, nil, time.Minute)

	items, err := q.LoadPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, snapshotIDs(items))
	assert.Equal(t, []int64{1, 2, 3}, snapshotIDs(q.Snapshot()))
}

func TestLoadPendingFailureKeepsSnapshot(t *testing.T) {
	repo := newFakeRepo(1, 2)
	q := NewQueue(repo, nil, time.Minute)

	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	repo.failList = true
	_, err = q.LoadPending(context.Background())
	require.Error(t, err)

	var repoErr *repository.RepositoryError
	if !errors.As(err, &repoErr) {
		// the fake returns a bare error; the real repository wraps it
		assert.EqualError(t, err, "list failed")
	}
	assert.Equal(t, []int64{1, 2}, snapshotIDs(q.Snapshot()), "previous snapshot must survive a failed reload")
}

func TestApproveOneRemovesRowAndUndoRestoresServerState(t *testing.T) {
	repo := newFakeRepo(1, 2)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	token, err := q.ApproveOne(context.Background(), 1, true)
	require.NoError(t, err)
	require.NotNil(t, token)

	require.NotNil(t, repo.approvals[1])
	assert.True(t, *repo.approvals[1])
	assert.Equal(t, []int64{2}, snapshotIDs(q.Snapshot()))

	require.NoError(t, token.Invoke(context.Background()))
	assert.Nil(t, repo.approvals[1], "undo must set approval back to pending")
	assert.Equal(t, []int64{2}, snapshotIDs(q.Snapshot()), "undo must not resurrect rows locally")
}

func TestApproveOneFailureLeavesSnapshot(t *testing.T) {
	repo := newFakeRepo(1, 2)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	repo.failSet = true
	token, err := q.ApproveOne(context.Background(), 1, false)
	require.Error(t, err)
	assert.Nil(t, token)

	var approvalErr *ApprovalError
	require.ErrorAs(t, err, &approvalErr)
	assert.Equal(t, []int64{1, 2}, snapshotIDs(q.Snapshot()))
}

func TestApproveManyBulkScenario(t *testing.T) {
	repo := newFakeRepo(7, 9, 12, 15)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Select(7))
	require.NoError(t, q.Select(9))

	token, err := q.ApproveMany(context.Background(), []int64{7, 9, 12}, true)
	require.NoError(t, err)
	require.NotNil(t, token)

	assert.Equal(t, []int64{15}, snapshotIDs(q.Snapshot()))
	assert.Empty(t, q.Selection(), "bulk approval clears the selection")
	assert.Equal(t, 1, repo.setCalls, "bulk approval must be one batched request")
	assert.Equal(t, []int64{7, 9, 12}, repo.batches[0])

	require.NoError(t, token.Invoke(context.Background()))
	for _, id := range []int64{7, 9, 12} {
		assert.Nil(t, repo.approvals[id])
	}
	assert.Equal(t, []int64{15}, snapshotIDs(q.Snapshot()), "rows come back only via reload")

	items, err := q.LoadPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9, 12, 15}, snapshotIDs(items))
}

func TestApproveManyFailureLeavesSnapshotAndSelection(t *testing.T) {
	repo := newFakeRepo(1, 2, 3)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Select(1))
	require.NoError(t, q.Select(2))

	repo.failSet = true
	token, err := q.ApproveMany(context.Background(), []int64{1, 2}, true)
	require.Error(t, err)
	assert.Nil(t, token)
	assert.Equal(t, []int64{1, 2, 3}, snapshotIDs(q.Snapshot()))
	assert.Equal(t, []int64{1, 2}, q.Selection())
}

func TestApproveManyEmptyBatch(t *testing.T) {
	q := NewQueue(newFakeRepo(), nil, time.Minute)
	_, err := q.ApproveMany(context.Background(), nil, true)
	require.Error(t, err)
}

func TestSelectionInvariant(t *testing.T) {
	repo := newFakeRepo(1, 2, 3)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, q.Select(99), ErrNotInQueue)
	require.NoError(t, q.Select(1))
	require.NoError(t, q.Select(3))

	// a reload that drops rows also drops their selection
	repo.pending = repo.pending[:1] // only id 1 remains pending
	_, err = q.LoadPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, q.Selection())

	q.Deselect(1)
	assert.Empty(t, q.Selection())

	require.NoError(t, q.Select(1))
	q.ClearSelection()
	assert.Empty(t, q.Selection())
}

func TestSortedViews(t *testing.T) {
	repo := &fakeRepo{approvals: map[int64]*bool{}}
	repo.pending = []model.CompositionSummary{
		{ID: 3, Name: "Aria", Composers: []string{"Bach"}},
		{ID: 1, Name: "Nocturne", Composers: []string{"Chopin"}},
		{ID: 2, Name: "Aria", Composers: []string{"Handel"}},
	}
	for _, item := range repo.pending {
		repo.approvals[item.ID] = nil
	}

	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	byName := q.Sorted(SortByName, false)
	assert.Equal(t, []int64{2, 3, 1}, snapshotIDs(byName), "name ties break by ascending id")

	byNameDesc := q.Sorted(SortByName, true)
	assert.Equal(t, []int64{1, 2, 3}, snapshotIDs(byNameDesc), "ties stay ascending even when descending")

	byComposers := q.Sorted(SortByComposers, false)
	assert.Equal(t, []int64{3, 1, 2}, snapshotIDs(byComposers))

	byIDDesc := q.Sorted(SortByID, true)
	assert.Equal(t, []int64{3, 2, 1}, snapshotIDs(byIDDesc))

	// sorting is a derived view, not a mutation
	assert.Equal(t, []int64{3, 1, 2}, snapshotIDs(q.Snapshot()))
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	repo := newFakeRepo(1, 2)
	q := NewQueue(repo, nil, time.Minute)

	updates, cancel := q.Subscribe()
	defer cancel()

	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	select {
	case snapshot := <-updates:
		assert.Equal(t, []int64{1, 2}, snapshotIDs(snapshot))
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after load")
	}

	_, err = q.ApproveOne(context.Background(), 1, true)
	require.NoError(t, err)

	select {
	case snapshot := <-updates:
		assert.Equal(t, []int64{2}, snapshotIDs(snapshot))
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after approval")
	}
}
