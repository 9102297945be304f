// Package seen tracks which listings have already been announced.
package seen

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultCap is the default maximum number of remembered listing ids.
const DefaultCap = 10000

// Store is the persistence the set loads from and saves to.
type Store interface {
	LoadSeen(ctx context.Context) ([]int64, error)
	SaveSeen(ctx context.Context, ids []int64) error
}

// Set is a bounded set of listing ids. When it grows past its cap the
// oldest ids are forgotten first.
type Set struct {
	store Store
	cap   int
	log   *slog.Logger

	mu    sync.Mutex
	ids   map[int64]struct{}
	order []int64 // insertion order, oldest first

	persistMu sync.Mutex
}

// New creates an empty Set. A cap below 1 falls back to DefaultCap.
func New(store Store, capacity int, log *slog.Logger) *Set {
	if capacity < 1 {
		capacity = DefaultCap
	}
	return &Set{
		store: store,
		cap:   capacity,
		log:   log,
		ids:   make(map[int64]struct{}),
	}
}

// Load replaces the set with the stored ids. A read failure leaves the set
// empty and is only logged, so every listing looks new rather than the
// process refusing to run.
func (s *Set) Load(ctx context.Context) {
	ids, err := s.store.LoadSeen(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = make(map[int64]struct{}, len(ids))
	s.order = s.order[:0]
	if err != nil {
		s.log.Warn("load seen listings, starting empty", "error", err)
		return
	}
	for _, id := range ids {
		s.addLocked(id)
	}
	s.log.Info("loaded seen listings", "count", len(s.order))
}

// IsSeen reports whether id is remembered.
func (s *Set) IsSeen(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// MarkSeen remembers id. Marking a remembered id again is a no-op.
func (s *Set) MarkSeen(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(id)
}

// MarkIfNew remembers id and reports whether it was unknown before.
// The check and the mark happen under one lock, so concurrent callers never
// both see the same id as new.
func (s *Set) MarkIfNew(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(id)
}

// Len returns the number of remembered ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Snapshot returns the remembered ids, oldest first.
func (s *Set) Snapshot() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

// Persist writes the whole set to the store. A failed write keeps the
// in-memory state; the error is returned for the caller to log.
func (s *Set) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	return s.store.SaveSeen(ctx, s.Snapshot())
}

func (s *Set) addLocked(id int64) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if over := len(s.order) - s.cap; over > 0 {
		for _, old := range s.order[:over] {
			delete(s.ids, old)
		}
		s.order = append(s.order[:0], s.order[over:]...)
	}
	return true
}
