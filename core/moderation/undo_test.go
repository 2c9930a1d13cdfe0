package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoIsNoOpAfterWindow(t *testing.T) {
	repo := newFakeRepo(1)
	q := NewQueue(repo, nil, 10*time.Second)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	token, err := q.ApproveOne(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, token.Active())

	now = now.Add(11 * time.Second)
	assert.False(t, token.Active())

	callsBefore := repo.setCalls
	require.NoError(t, token.Invoke(context.Background()))
	assert.Equal(t, callsBefore, repo.setCalls, "expired token must not reach the repository")
	require.NotNil(t, repo.approvals[1])
	assert.True(t, *repo.approvals[1], "server state stays approved")
}

func TestUndoHasEffectAtMostOnce(t *testing.T) {
	repo := newFakeRepo(1)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	token, err := q.ApproveOne(context.Background(), 1, false)
	require.NoError(t, err)

	require.NoError(t, token.Invoke(context.Background()))
	callsAfterFirst := repo.setCalls
	assert.False(t, token.Active())

	require.NoError(t, token.Invoke(context.Background()))
	assert.Equal(t, callsAfterFirst, repo.setCalls, "second invocation is a no-op")
}

func TestUndoDismissEndsWindowEarly(t *testing.T) {
	repo := newFakeRepo(1)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	token, err := q.ApproveOne(context.Background(), 1, true)
	require.NoError(t, err)

	token.Dismiss()
	assert.False(t, token.Active())

	callsBefore := repo.setCalls
	require.NoError(t, token.Invoke(context.Background()))
	assert.Equal(t, callsBefore, repo.setCalls)
}

func TestUndoFailureKeepsTokenUsable(t *testing.T) {
	repo := newFakeRepo(1)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	token, err := q.ApproveOne(context.Background(), 1, true)
	require.NoError(t, err)

	repo.failSet = true
	err = token.Invoke(context.Background())
	require.Error(t, err)
	assert.True(t, token.Active(), "a failed undo can be retried within the window")

	repo.failSet = false
	require.NoError(t, token.Invoke(context.Background()))
	assert.Nil(t, repo.approvals[1])
	assert.False(t, token.Active())
}

func TestUndoTokenIDs(t *testing.T) {
	repo := newFakeRepo(7, 9)
	q := NewQueue(repo, nil, time.Minute)
	_, err := q.LoadPending(context.Background())
	require.NoError(t, err)

	token, err := q.ApproveMany(context.Background(), []int64{7, 9}, true)
	require.NoError(t, err)

	ids := token.IDs()
	assert.Equal(t, []int64{7, 9}, ids)

	ids[0] = 42
	assert.Equal(t, []int64{7, 9}, token.IDs(), "IDs returns a copy")
}
