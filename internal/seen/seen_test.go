package seen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kv_bot/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	ids     []int64
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) LoadSeen(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]int64(nil), m.ids...), nil
}

func (m *memStore) SaveSeen(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ids = append([]int64(nil), ids...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s := New(store, 10, discardLogger())

	s.MarkSeen(7)
	s.MarkSeen(7)

	if !s.IsSeen(7) {
		t.Fatal("expected 7 to be seen")
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if diff := cmp.Diff([]int64{7}, store.ids); diff != "" {
		t.Errorf("persisted ids mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkIfNew(t *testing.T) {
	s := New(&memStore{}, 10, discardLogger())

	if !s.MarkIfNew(1) {
		t.Error("first MarkIfNew(1) = false, want true")
	}
	if s.MarkIfNew(1) {
		t.Error("second MarkIfNew(1) = true, want false")
	}
	if s.IsSeen(2) {
		t.Error("IsSeen(2) = true for unmarked id")
	}
}

func TestCapEvictsOldestFirst(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		marks    []int64
		want     []int64
	}{
		{
			name:     "below cap keeps all",
			capacity: 3,
			marks:    []int64{1, 2},
			want:     []int64{1, 2},
		},
		{
			name:     "one over cap drops oldest",
			capacity: 3,
			marks:    []int64{1, 2, 3, 4},
			want:     []int64{2, 3, 4},
		},
		{
			name:     "re-marking does not refresh age",
			capacity: 3,
			marks:    []int64{1, 2, 3, 1, 4},
			want:     []int64{2, 3, 4},
		},
		{
			name:     "cap of one",
			capacity: 1,
			marks:    []int64{5, 6, 7},
			want:     []int64{7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&memStore{}, tt.capacity, discardLogger())
			for _, id := range tt.marks {
				s.MarkSeen(id)
				if s.Len() > tt.capacity {
					t.Fatalf("Len() = %d exceeds cap %d", s.Len(), tt.capacity)
				}
			}
			if diff := cmp.Diff(tt.want, s.Snapshot()); diff != "" {
				t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
			}
			for _, id := range tt.want {
				if !s.IsSeen(id) {
					t.Errorf("IsSeen(%d) = false after eviction", id)
				}
			}
		})
	}
}

func TestDefaultCapBound(t *testing.T) {
	s := New(&memStore{}, 0, discardLogger())
	for id := int64(0); id < DefaultCap+500; id++ {
		s.MarkSeen(id)
	}
	if diff := cmp.Diff(DefaultCap, s.Len()); diff != "" {
		t.Errorf("Len mismatch (-want +got):\n%s", diff)
	}
	if s.IsSeen(499) {
		t.Error("oldest id 499 should have been evicted")
	}
	if !s.IsSeen(500) {
		t.Error("id 500 should still be remembered")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		store    *memStore
		capacity int
		want     []int64
	}{
		{
			name:     "restores order",
			store:    &memStore{ids: []int64{3, 1, 2}},
			capacity: 10,
			want:     []int64{3, 1, 2},
		},
		{
			name:     "drops duplicates",
			store:    &memStore{ids: []int64{1, 2, 1}},
			capacity: 10,
			want:     []int64{1, 2},
		},
		{
			name:     "applies cap keeping newest",
			store:    &memStore{ids: []int64{1, 2, 3, 4, 5}},
			capacity: 2,
			want:     []int64{4, 5},
		},
		{
			name:     "load failure starts empty",
			store:    &memStore{ids: []int64{1}, loadErr: storage.ErrPersistence},
			capacity: 10,
			want:     []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.store, tt.capacity, discardLogger())
			s.MarkSeen(99)
			s.Load(context.Background())
			if diff := cmp.Diff(tt.want, s.Snapshot()); diff != "" {
				t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPersistFailureKeepsMemory(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	s := New(store, 10, discardLogger())
	s.MarkSeen(1)

	if err := s.Persist(context.Background()); err == nil {
		t.Fatal("expected persist error")
	}
	if !s.IsSeen(1) {
		t.Error("in-memory mark was rolled back")
	}
}

func TestConcurrentMarkIfNew(t *testing.T) {
	s := New(&memStore{}, 100, discardLogger())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkIfNew(42) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if diff := cmp.Diff(1, winners); diff != "" {
		t.Errorf("concurrent MarkIfNew winners mismatch (-want +got):\n%s", diff)
	}
}
