package client

import (
	"sort"
	"sync"
	"time"

	"alert-service/internal/domain"
)

// View is the reconciled, deduplicated set of notifications one client
// sees. Records arrive from pushes, snapshot fetches and the local cache
// in any order; the view keeps one entry per id and only ever moves its
// lifecycle state forward, so a stale snapshot can never undo an ack or
// resolve the client already learned about.
type View struct {
	mu      sync.Mutex
	byID    map[int64]*domain.Notification
	lastErr error
}

func NewView() *View {
	return &View{byID: make(map[int64]*domain.Notification)}
}

// MergeRecord folds one record into the view. Unseen ids are inserted;
// for known ids the stored content is kept and only a forward state (and
// its timestamps) is adopted. Reports whether the view changed.
func (v *View) MergeRecord(n *domain.Notification) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	cur, ok := v.byID[n.ID]
	if !ok {
		v.byID[n.ID] = n.Clone()
		return true
	}
	if domain.StateRank(n.State) <= domain.StateRank(cur.State) {
		return false
	}
	cur.State = n.State
	if n.AcknowledgedAt != nil && cur.AcknowledgedAt == nil {
		t := *n.AcknowledgedAt
		cur.AcknowledgedAt = &t
	}
	if n.ResolvedAt != nil && cur.ResolvedAt == nil {
		t := *n.ResolvedAt
		cur.ResolvedAt = &t
	}
	return true
}

// MergeTransition applies an id-only lifecycle push. Unknown ids are
// ignored: a scoped client may legitimately receive transitions for
// records it never saw. Timestamps are stamped locally when the server
// did not supply them.
func (v *View) MergeTransition(id int64, target domain.State) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	cur, ok := v.byID[id]
	if !ok {
		return false
	}
	if domain.StateRank(target) <= domain.StateRank(cur.State) {
		return false
	}
	now := time.Now().UTC()
	cur.State = target
	switch target {
	case domain.StateAck:
		if cur.AcknowledgedAt == nil {
			cur.AcknowledgedAt = &now
		}
	case domain.StateResolved:
		if cur.ResolvedAt == nil {
			cur.ResolvedAt = &now
		}
	}
	return true
}

// stateSnapshot captures the lifecycle fields so an optimistic transition
// can be rolled back when the confirming call fails.
type stateSnapshot struct {
	state          domain.State
	acknowledgedAt *time.Time
	resolvedAt     *time.Time
}

func (v *View) captureState(id int64) (stateSnapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.byID[id]
	if !ok {
		return stateSnapshot{}, false
	}
	return stateSnapshot{
		state:          cur.State,
		acknowledgedAt: cur.AcknowledgedAt,
		resolvedAt:     cur.ResolvedAt,
	}, true
}

// restoreState undoes an optimistic transition. This is the one write
// allowed to move a record backward, and only to a state the view itself
// held before.
func (v *View) restoreState(id int64, snap stateSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.byID[id]
	if !ok {
		return
	}
	cur.State = snap.state
	cur.AcknowledgedAt = snap.acknowledgedAt
	cur.ResolvedAt = snap.resolvedAt
}

// Snapshot returns the current records, newest first.
func (v *View) Snapshot() []*domain.Notification {
	v.mu.Lock()
	out := make([]*domain.Notification, 0, len(v.byID))
	for _, n := range v.byID {
		out = append(out, n.Clone())
	}
	v.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Get returns a copy of one record.
func (v *View) Get(id int64) (*domain.Notification, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.byID[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Len reports how many records the view holds.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byID)
}

// SetLastError records why the last refresh failed; nil clears it. An
// unreadable store is presented as an error state with the previous
// records intact, never as an empty list.
func (v *View) SetLastError(err error) {
	v.mu.Lock()
	v.lastErr = err
	v.mu.Unlock()
}

// LastError returns the error state of the last refresh, if any.
func (v *View) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}
