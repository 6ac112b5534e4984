package repository

import (
	"context"

	"alert-service/internal/domain"
)

// List paging bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListQuery filters a notification listing. Filters are AND-combined;
// empty fields do not filter.
type ListQuery struct {
	State   domain.State
	Station string
	Route   string
	Flight  string
	Limit   int
	Offset  int
}

// clamp applies the default and maximum page size.
func (q ListQuery) clamp() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Store is the durable record of alerts and the authority on lifecycle
// state.
type Store interface {
	// Append assigns the next id, stamps CreatedAt, sets state to new and
	// persists the draft. Concurrent calls never reuse an id.
	Append(ctx context.Context, draft *domain.Notification) (*domain.Notification, error)

	// Get returns the record or xerrors.ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.Notification, error)

	// List returns matching records ordered by CreatedAt descending.
	List(ctx context.Context, q ListQuery) ([]*domain.Notification, error)

	// Transition moves the record forward to target. A transition to the
	// current or an earlier state is a no-op success (changed=false), so
	// duplicate client actions stay idempotent. The timestamp for the
	// reached state is set exactly once, by the first effective call.
	Transition(ctx context.Context, id int64, target domain.State) (n *domain.Notification, changed bool, err error)
}
