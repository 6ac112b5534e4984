package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"alert-service/internal/domain"
	"alert-service/pkg/xerrors"
)

// memStore keeps all records in memory behind one mutex, optionally
// snapshotting the full set to a JSON file after each mutation. It serves
// dev mode and tests; the serialized writer and atomic rename keep the
// snapshot consistent under concurrent API calls.
type memStore struct {
	mu           sync.Mutex
	lastID       int64
	records      map[int64]*domain.Notification
	snapshotPath string
}

// NewMemoryStore returns an empty in-memory store. If snapshotPath is
// non-empty, an existing snapshot is loaded (resuming id assignment past
// the highest stored id) and every mutation rewrites it.
func NewMemoryStore(snapshotPath string) (Store, error) {
	s := &memStore{
		records:      make(map[int64]*domain.Notification),
		snapshotPath: snapshotPath,
	}
	if snapshotPath != "" {
		if err := s.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *memStore) Append(ctx context.Context, draft *domain.Notification) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	n := draft.Clone()
	n.ID = s.lastID
	n.CreatedAt = time.Now().UTC()
	n.State = domain.StateNew
	n.AcknowledgedAt = nil
	n.ResolvedAt = nil
	s.records[n.ID] = n

	if err := s.writeSnapshotLocked(); err != nil {
		// Roll the insert back so a failed write is not silently dropped.
		delete(s.records, n.ID)
		return nil, err
	}
	return n.Clone(), nil
}

func (s *memStore) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.records[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return n.Clone(), nil
}

func (s *memStore) List(ctx context.Context, q ListQuery) ([]*domain.Notification, error) {
	q = q.clamp()

	s.mu.Lock()
	matched := make([]*domain.Notification, 0, len(s.records))
	for _, n := range s.records {
		if q.State != "" && n.State != q.State {
			continue
		}
		if q.Station != "" && n.Station != q.Station {
			continue
		}
		if q.Route != "" && n.Route != q.Route {
			continue
		}
		if q.Flight != "" && n.Flight != q.Flight {
			continue
		}
		matched = append(matched, n.Clone())
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if q.Offset >= len(matched) {
		return []*domain.Notification{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], nil
}

func (s *memStore) Transition(ctx context.Context, id int64, target domain.State) (*domain.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.records[id]
	if !ok {
		return nil, false, xerrors.ErrNotFound
	}
	if domain.StateRank(target) <= domain.StateRank(n.State) {
		return n.Clone(), false, nil
	}

	prevState := n.State
	prevAck, prevRes := n.AcknowledgedAt, n.ResolvedAt

	now := time.Now().UTC()
	n.State = target
	switch target {
	case domain.StateAck:
		if n.AcknowledgedAt == nil {
			n.AcknowledgedAt = &now
		}
	case domain.StateResolved:
		if n.ResolvedAt == nil {
			n.ResolvedAt = &now
		}
	}

	if err := s.writeSnapshotLocked(); err != nil {
		n.State = prevState
		n.AcknowledgedAt, n.ResolvedAt = prevAck, prevRes
		return nil, false, err
	}
	return n.Clone(), true, nil
}

func (s *memStore) loadSnapshot() error {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	var list []*domain.Notification
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for _, n := range list {
		s.records[n.ID] = n
		if n.ID > s.lastID {
			s.lastID = n.ID
		}
	}
	return nil
}

// writeSnapshotLocked rewrites the snapshot via temp file + rename so a
// crash mid-write never leaves a torn file. Caller holds the mutex.
func (s *memStore) writeSnapshotLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	list := make([]*domain.Notification, 0, len(s.records))
	for _, n := range s.records {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(s.snapshotPath), "."+filepath.Base(s.snapshotPath)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
