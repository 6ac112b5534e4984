package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-service/internal/domain"
)

func record(id int64, state domain.State, createdAt time.Time) *domain.Notification {
	return &domain.Notification{
		ID:        id,
		Type:      domain.EventStockOut,
		Severity:  domain.SeverityHigh,
		State:     state,
		CreatedAt: createdAt,
	}
}

func TestMergeRecordInsertsUnseen(t *testing.T) {
	v := NewView()
	assert.True(t, v.MergeRecord(record(1, domain.StateNew, time.Now())))
	assert.Equal(t, 1, v.Len())
}

func TestMergeRecordNoStateRegression(t *testing.T) {
	v := NewView()
	now := time.Now()
	res := record(1, domain.StateResolved, now)
	ts := now.Add(time.Minute)
	res.ResolvedAt = &ts
	require.True(t, v.MergeRecord(res))

	// A stale snapshot still carrying state=new must not undo the resolve.
	assert.False(t, v.MergeRecord(record(1, domain.StateNew, now)))

	got, ok := v.Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.StateResolved, got.State)
	assert.NotNil(t, got.ResolvedAt)
}

func TestMergeRecordAdoptsForwardState(t *testing.T) {
	v := NewView()
	now := time.Now()
	require.True(t, v.MergeRecord(record(1, domain.StateNew, now)))

	ack := record(1, domain.StateAck, now)
	ts := now.Add(time.Second)
	ack.AcknowledgedAt = &ts
	assert.True(t, v.MergeRecord(ack))

	got, _ := v.Get(1)
	assert.Equal(t, domain.StateAck, got.State)
	require.NotNil(t, got.AcknowledgedAt)
	assert.True(t, got.AcknowledgedAt.Equal(ts))
}

func TestMergeRecordDuplicateSameState(t *testing.T) {
	v := NewView()
	now := time.Now()
	require.True(t, v.MergeRecord(record(1, domain.StateNew, now)))
	assert.False(t, v.MergeRecord(record(1, domain.StateNew, now)))
	assert.Equal(t, 1, v.Len())
}

func TestMergeTransitionUnknownIDIgnored(t *testing.T) {
	v := NewView()
	assert.False(t, v.MergeTransition(99, domain.StateAck))
	assert.Equal(t, 0, v.Len())
}

func TestMergeTransitionForwardOnly(t *testing.T) {
	v := NewView()
	require.True(t, v.MergeRecord(record(1, domain.StateNew, time.Now())))

	assert.True(t, v.MergeTransition(1, domain.StateResolved))
	assert.False(t, v.MergeTransition(1, domain.StateAck))

	got, _ := v.Get(1)
	assert.Equal(t, domain.StateResolved, got.State)
	assert.NotNil(t, got.ResolvedAt)
	assert.Nil(t, got.AcknowledgedAt)
}

func TestSnapshotNewestFirst(t *testing.T) {
	v := NewView()
	base := time.Now()
	v.MergeRecord(record(1, domain.StateNew, base))
	v.MergeRecord(record(2, domain.StateNew, base.Add(2*time.Second)))
	v.MergeRecord(record(3, domain.StateNew, base.Add(time.Second)))

	snap := v.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, int64(2), snap[0].ID)
	assert.Equal(t, int64(3), snap[1].ID)
	assert.Equal(t, int64(1), snap[2].ID)
}

func TestSnapshotTieBreakByID(t *testing.T) {
	v := NewView()
	at := time.Now()
	v.MergeRecord(record(1, domain.StateNew, at))
	v.MergeRecord(record(2, domain.StateNew, at))

	snap := v.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(2), snap[0].ID)
}

func TestLastErrorRoundTrip(t *testing.T) {
	v := NewView()
	v.MergeRecord(record(1, domain.StateNew, time.Now()))

	boom := errors.New("store unreadable")
	v.SetLastError(boom)
	assert.Equal(t, boom, v.LastError())
	// Error state keeps the records: not an empty list.
	assert.Equal(t, 1, v.Len())

	v.SetLastError(nil)
	assert.NoError(t, v.LastError())
}

func TestRestoreStateUndoesOptimisticTransition(t *testing.T) {
	v := NewView()
	require.True(t, v.MergeRecord(record(1, domain.StateNew, time.Now())))

	snap, ok := v.captureState(1)
	require.True(t, ok)
	require.True(t, v.MergeTransition(1, domain.StateResolved))

	v.restoreState(1, snap)
	got, _ := v.Get(1)
	assert.Equal(t, domain.StateNew, got.State)
	assert.Nil(t, got.ResolvedAt)
}
