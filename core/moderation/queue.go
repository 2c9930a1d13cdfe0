package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fermata/cache"
	"fermata/logger"
	"fermata/model"
	"fermata/repository"
)

// ErrNotInQueue is returned when a selection targets a composition that is
// not part of the current snapshot.
var ErrNotInQueue = errors.New("composition not in queue")

// ApprovalError reports a failed approval transition. The snapshot and
// selection are left untouched when one is returned.
type ApprovalError struct {
	Reason string
	Err    error
}

func (e *ApprovalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("approval failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("approval failed: %s", e.Reason)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

// SortColumn selects the column a queue view is ordered by.
type SortColumn string

const (
	SortByID        SortColumn = "id"
	SortByName      SortColumn = "name"
	SortByComposers SortColumn = "composers"
)

// Queue holds the moderation queue: the in-memory snapshot of pending
// compositions and the selection used for bulk actions. The snapshot is only
// ever mutated in response to confirmed repository responses, never
// optimistically.
type Queue struct {
	repo       repository.CompositionRepository
	cache      *cache.QueueCache // may be nil
	undoWindow time.Duration
	now        func() time.Time

	mu       sync.Mutex
	snapshot []model.CompositionSummary
	selected map[int64]struct{}
	subs     map[int64]chan []model.CompositionSummary
	nextSub  int64
}

// NewQueue creates a moderation queue controller. qc may be nil to disable
// the Redis view cache.
func NewQueue(repo repository.CompositionRepository, qc *cache.QueueCache, undoWindow time.Duration) *Queue {
	return &Queue{
		repo:       repo,
		cache:      qc,
		undoWindow: undoWindow,
		now:        time.Now,
		selected:   make(map[int64]struct{}),
		subs:       make(map[int64]chan []model.CompositionSummary),
	}
}

// LoadPending fetches all pending compositions and replaces the snapshot.
// On failure the previous snapshot is retained so the caller can keep
// showing the last-known-good view.
func (q *Queue) LoadPending(ctx context.Context) ([]model.CompositionSummary, error) {
	if items, ok := q.cache.Get(ctx); ok {
		q.replaceSnapshot(items)
		return q.Snapshot(), nil
	}

	items, err := q.repo.ListPendingCompositions(ctx)
	if err != nil {
		return nil, err
	}

	q.replaceSnapshot(items)
	if err := q.cache.Set(ctx, items); err != nil {
		logger.Warn("Failed to cache pending queue", logger.ErrorField(err))
	}
	return q.Snapshot(), nil
}

// replaceSnapshot swaps in a new snapshot and drops selections that no
// longer resolve to a row.
func (q *Queue) replaceSnapshot(items []model.CompositionSummary) {
	q.mu.Lock()
	q.snapshot = append([]model.CompositionSummary(nil), items...)
	for id := range q.selected {
		if !q.containsLocked(id) {
			delete(q.selected, id)
		}
	}
	q.mu.Unlock()
	q.broadcast()
}

// ApproveOne sets one composition's approval state. On success the row
// leaves the queue (for both approve and disapprove) and the returned token
// can restore the previous server state within the undo window.
func (q *Queue) ApproveOne(ctx context.Context, compositionID int64, approved bool) (*UndoToken, error) {
	if err := q.repo.SetApproval(ctx, compositionID, &approved); err != nil {
		return nil, &ApprovalError{Reason: "failed to update composition", Err: err}
	}

	q.mu.Lock()
	q.removeLocked(compositionID)
	q.mu.Unlock()
	q.invalidateCache(ctx)
	q.broadcast()

	logger.Info("Composition moderated",
		logger.Int64("compositionId", compositionID),
		logger.Bool("approved", approved))
	return q.newUndoToken([]int64{compositionID}), nil
}

// ApproveMany applies the same transition to every id as one batched
// repository call. Either all rows are reported changed or none are; a
// failure leaves snapshot and selection untouched. On success the affected
// rows leave the queue and the selection is cleared.
func (q *Queue) ApproveMany(ctx context.Context, compositionIDs []int64, approved bool) (*UndoToken, error) {
	if len(compositionIDs) == 0 {
		return nil, &ApprovalError{Reason: "no compositions given"}
	}

	if err := q.repo.SetApprovalMany(ctx, compositionIDs, &approved); err != nil {
		return nil, &ApprovalError{Reason: "failed to update compositions", Err: err}
	}

	q.mu.Lock()
	for _, id := range compositionIDs {
		q.removeLocked(id)
	}
	q.selected = make(map[int64]struct{})
	q.mu.Unlock()
	q.invalidateCache(ctx)
	q.broadcast()

	logger.Info("Compositions moderated",
		logger.Int("count", len(compositionIDs)),
		logger.Bool("approved", approved))
	return q.newUndoToken(compositionIDs), nil
}

func (q *Queue) invalidateCache(ctx context.Context) {
	if err := q.cache.Invalidate(ctx); err != nil {
		logger.Warn("Failed to invalidate pending queue cache", logger.ErrorField(err))
	}
}

// removeLocked drops a row from the snapshot and the selection.
func (q *Queue) removeLocked(compositionID int64) {
	for i, item := range q.snapshot {
		if item.ID == compositionID {
			q.snapshot = append(q.snapshot[:i], q.snapshot[i+1:]...)
			break
		}
	}
	delete(q.selected, compositionID)
}

func (q *Queue) containsLocked(compositionID int64) bool {
	for _, item := range q.snapshot {
		if item.ID == compositionID {
			return true
		}
	}
	return false
}

// Select marks a composition for bulk actions. Only rows present in the
// snapshot can be selected.
func (q *Queue) Select(compositionID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.containsLocked(compositionID) {
		return ErrNotInQueue
	}
	q.selected[compositionID] = struct{}{}
	return nil
}

// Deselect removes a composition from the selection.
func (q *Queue) Deselect(compositionID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.selected, compositionID)
}

// ClearSelection empties the selection.
func (q *Queue) ClearSelection() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.selected = make(map[int64]struct{})
}

// Selection returns the selected ids in ascending order.
func (q *Queue) Selection() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]int64, 0, len(q.selected))
	for id := range q.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns a copy of the current queue view.
func (q *Queue) Snapshot() []model.CompositionSummary {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.CompositionSummary(nil), q.snapshot...)
}

// Sorted returns the snapshot ordered by the given column. Ties always
// break by ascending id. The view is derived on every call; stored order is
// never mutated.
func (q *Queue) Sorted(column SortColumn, descending bool) []model.CompositionSummary {
	items := q.Snapshot()

	less := func(a, b model.CompositionSummary) bool {
		switch column {
		case SortByName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		case SortByComposers:
			ca, cb := strings.Join(a.Composers, ", "), strings.Join(b.Composers, ", ")
			if ca != cb {
				return ca < cb
			}
		default:
			if a.ID != b.ID {
				return a.ID < b.ID
			}
		}
		return false
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if less(a, b) {
			return !descending
		}
		if less(b, a) {
			return descending
		}
		return a.ID < b.ID
	})
	return items
}

// Subscribe returns a channel receiving a snapshot copy after every queue
// mutation, plus a cancel func. A slow subscriber only ever misses
// intermediate states, never the latest one.
func (q *Queue) Subscribe() (<-chan []model.CompositionSummary, func()) {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	ch := make(chan []model.CompositionSummary, 1)
	q.subs[id] = ch
	q.mu.Unlock()

	cancel := func() {
		q.mu.Lock()
		if sub, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(sub)
		}
		q.mu.Unlock()
	}
	return ch, cancel
}

func (q *Queue) broadcast() {
	q.mu.Lock()
	snapshot := append([]model.CompositionSummary(nil), q.snapshot...)
	for _, ch := range q.subs {
		select {
		case ch <- snapshot:
		default:
			// replace the stale pending snapshot with the latest one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
	q.mu.Unlock()
}
