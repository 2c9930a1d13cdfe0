package moderation

import (
	"context"
	"sync"
	"time"

	"fermata/logger"
)

// UndoToken is the compensating handle returned by a successful approval
// transition. Invoking it re-applies the previous approval state (pending)
// to its ids on the server; it never resurrects rows into the local
// snapshot — reloading the queue is required to see them again.
//
// A token is valid until its window elapses or it is dismissed, and has an
// observable effect at most once. Invoking an expired, dismissed or spent
// token is a no-op success.
type UndoToken struct {
	queue    *Queue
	ids      []int64
	previous *bool // nil means back to pending
	deadline time.Time

	mu        sync.Mutex
	used      bool
	dismissed bool
}

func (q *Queue) newUndoToken(ids []int64) *UndoToken {
	return &UndoToken{
		queue:    q,
		ids:      append([]int64(nil), ids...),
		previous: nil,
		deadline: q.now().Add(q.undoWindow),
	}
}

// IDs returns the composition ids covered by the token.
func (t *UndoToken) IDs() []int64 {
	return append([]int64(nil), t.ids...)
}

// Active reports whether invoking the token would still have an effect.
func (t *UndoToken) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

func (t *UndoToken) activeLocked() bool {
	return !t.used && !t.dismissed && t.queue.now().Before(t.deadline)
}

// Dismiss ends the validity window early, the way dismissing the
// notification does.
func (t *UndoToken) Dismiss() {
	t.mu.Lock()
	t.dismissed = true
	t.mu.Unlock()
}

// Invoke re-applies the previous approval state to the token's ids. Outside
// the validity window, or after a prior successful invocation, it does
// nothing and returns nil. A failed invocation keeps the token usable for
// another attempt within the window.
func (t *UndoToken) Invoke(ctx context.Context) error {
	t.mu.Lock()
	if !t.activeLocked() {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.queue.repo.SetApprovalMany(ctx, t.ids, t.previous); err != nil {
		return &ApprovalError{Reason: "failed to undo approval", Err: err}
	}

	t.mu.Lock()
	t.used = true
	t.mu.Unlock()

	t.queue.invalidateCache(ctx)
	logger.Info("Approval undone", logger.Int("count", len(t.ids)))
	return nil
}
