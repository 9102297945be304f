// Package subscribers keeps the notification preferences of every chat.
package subscribers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"kv_bot/internal/model"
)

// Store is the persistence the registry loads from and saves to.
type Store interface {
	LoadSubscribers(ctx context.Context) ([]model.Subscriber, error)
	SaveSubscribers(ctx context.Context, subs []model.Subscriber) error
}

// Update is a partial change to a subscriber. Nil fields are left as they are.
// ResetFilters is applied first, then ClearFilters, then SetFilters.
type Update struct {
	Mode         *model.NotificationMode
	Subscribed   *bool
	SetFilters   model.Filters
	ClearFilters []model.FilterKey
	ResetFilters bool
}

// Registry is the in-memory subscriber map with write-through persistence.
type Registry struct {
	store Store
	log   *slog.Logger

	mu   sync.Mutex
	subs map[int64]model.Subscriber

	persistMu sync.Mutex
}

// New creates an empty Registry.
func New(store Store, log *slog.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log,
		subs:  make(map[int64]model.Subscriber),
	}
}

// Load replaces the registry with the stored subscribers. A read failure
// leaves the registry empty and is only logged.
func (r *Registry) Load(ctx context.Context) {
	subs, err := r.store.LoadSubscribers(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[int64]model.Subscriber, len(subs))
	if err != nil {
		r.log.Warn("load subscribers, starting empty", "error", err)
		return
	}
	for _, s := range subs {
		r.subs[s.ChatID] = s.Clone()
	}
	r.log.Info("loaded subscribers", "count", len(r.subs))
}

// Get returns a copy of the subscriber for chatID.
func (r *Registry) Get(chatID int64) (model.Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[chatID]
	if !ok {
		return model.Subscriber{}, false
	}
	return s.Clone(), true
}

// Upsert merges u into the subscriber for chatID, creating the default
// record first if there is none, and persists the registry.
// The merged record is returned even when persisting fails.
func (r *Registry) Upsert(ctx context.Context, chatID int64, u Update) (model.Subscriber, error) {
	r.mu.Lock()
	s, ok := r.subs[chatID]
	if !ok {
		s = model.NewSubscriber(chatID)
	} else {
		s = s.Clone()
	}
	apply(&s, u)
	r.subs[chatID] = s
	out := s.Clone()
	r.mu.Unlock()

	if err := r.Persist(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// Remove deletes the subscriber record entirely and persists the registry.
// Removing an unknown chat is not an error.
func (r *Registry) Remove(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	_, ok := r.subs[chatID]
	delete(r.subs, chatID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.Persist(ctx)
}

// ListSubscribed returns subscribed records ordered by chat id. With modes
// given, only subscribers in one of those modes are returned.
func (r *Registry) ListSubscribed(modes ...model.NotificationMode) []model.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Subscriber
	for _, s := range r.subs {
		if !s.Subscribed || !modeIn(s.Mode, modes) {
			continue
		}
		out = append(out, s.Clone())
	}
	sortByChat(out)
	return out
}

// All returns every record, subscribed or not, ordered by chat id.
func (r *Registry) All() []model.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// MarkNotified sets the last notification time of chatID without
// persisting. Callers batch a Persist after a dispatch loop.
func (r *Registry) MarkNotified(chatID int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[chatID]
	if !ok {
		return
	}
	t := at
	s.LastNotification = &t
	r.subs[chatID] = s
}

// Persist writes the whole registry to the store.
func (r *Registry) Persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.store.SaveSubscribers(ctx, snapshot); err != nil {
		return fmt.Errorf("save subscribers: %w", err)
	}
	return nil
}

func (r *Registry) snapshotLocked() []model.Subscriber {
	out := make([]model.Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s.Clone())
	}
	sortByChat(out)
	return out
}

func apply(s *model.Subscriber, u Update) {
	if u.Mode != nil {
		s.Mode = *u.Mode
	}
	if u.Subscribed != nil {
		s.Subscribed = *u.Subscribed
	}
	if s.Filters == nil || u.ResetFilters {
		s.Filters = model.Filters{}
	}
	for _, k := range u.ClearFilters {
		delete(s.Filters, k)
	}
	for k, v := range u.SetFilters {
		s.Filters[k] = v
	}
}

func modeIn(m model.NotificationMode, modes []model.NotificationMode) bool {
	if len(modes) == 0 {
		return true
	}
	for _, want := range modes {
		if m == want {
			return true
		}
	}
	return false
}

func sortByChat(subs []model.Subscriber) {
	sort.Slice(subs, func(a, b int) bool { return subs[a].ChatID < subs[b].ChatID })
}
