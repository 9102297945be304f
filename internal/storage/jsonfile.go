package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"kv_bot/internal/model"
)

// Document file names inside the JSON data directory.
const (
	SubscribersFile = "subscribers.json"
	SeenFile        = "seen_listings.json"
)

// JSONFile implements Storage with two JSON documents in a directory.
// A missing document loads as empty.
type JSONFile struct {
	dir string
	mu  sync.Mutex
}

type subscriberDoc struct {
	ChatID           int64                  `json:"chat_id"`
	NotificationMode model.NotificationMode `json:"notification_mode"`
	Filters          model.Filters          `json:"filters"`
	Subscribed       bool                   `json:"subscribed"`
	LastNotification *docTime               `json:"last_notification"`
}

// isoLocalLayout matches zone-less timestamps such as 2024-05-04T09:00:00.123456.
const isoLocalLayout = "2006-01-02T15:04:05.999999"

// docTime is a timestamp that also accepts zone-less values, read in local time.
type docTime time.Time

func (t docTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t *docTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.ParseInLocation(isoLocalLayout, s, time.Local)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
	}
	*t = docTime(parsed)
	return nil
}

func toDocTime(t *time.Time) *docTime {
	if t == nil {
		return nil
	}
	d := docTime(*t)
	return &d
}

func fromDocTime(d *docTime) *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}

// NewJSONFile returns a JSON store rooted at dir, creating it if needed.
func NewJSONFile(dir string) (*JSONFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &JSONFile{dir: dir}, nil
}

// Close is a no-op; every save closes its file.
func (j *JSONFile) Close() error { return nil }

// LoadSubscribers reads the subscriber document, keyed by string chat id.
func (j *JSONFile) LoadSubscribers(_ context.Context) ([]model.Subscriber, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var doc map[string]subscriberDoc
	if err := j.read(SubscribersFile, &doc); err != nil {
		return nil, err
	}

	subs := make([]model.Subscriber, 0, len(doc))
	for key, d := range doc {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid chat id %q in %s", ErrPersistence, key, SubscribersFile)
		}
		sub := model.Subscriber{
			ChatID:           chatID,
			Mode:             d.NotificationMode,
			Filters:          d.Filters,
			Subscribed:       d.Subscribed,
			LastNotification: fromDocTime(d.LastNotification),
		}
		if sub.Mode == "" {
			sub.Mode = model.ModeImmediate
		}
		if sub.Filters == nil {
			sub.Filters = model.Filters{}
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(a, b int) bool { return subs[a].ChatID < subs[b].ChatID })
	return subs, nil
}

// SaveSubscribers rewrites the subscriber document.
func (j *JSONFile) SaveSubscribers(_ context.Context, subs []model.Subscriber) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := make(map[string]subscriberDoc, len(subs))
	for _, sub := range subs {
		filters := sub.Filters
		if filters == nil {
			filters = model.Filters{}
		}
		doc[strconv.FormatInt(sub.ChatID, 10)] = subscriberDoc{
			ChatID:           sub.ChatID,
			NotificationMode: sub.Mode,
			Filters:          filters,
			Subscribed:       sub.Subscribed,
			LastNotification: toDocTime(sub.LastNotification),
		}
	}
	return j.write(SubscribersFile, doc)
}

// LoadSeen reads the seen-set document.
func (j *JSONFile) LoadSeen(_ context.Context) ([]int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var ids []int64
	if err := j.read(SeenFile, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveSeen rewrites the seen-set document.
func (j *JSONFile) SaveSeen(_ context.Context, ids []int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if ids == nil {
		ids = []int64{}
	}
	return j.write(SeenFile, ids)
}

func (j *JSONFile) read(name string, v any) error {
	file, err := os.Open(filepath.Join(j.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: open %s: %w", ErrPersistence, name, err)
	}
	defer func() { _ = file.Close() }()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrPersistence, name, err)
	}
	return nil
}

func (j *JSONFile) write(name string, v any) error {
	file, err := os.Create(filepath.Join(j.dir, name))
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrPersistence, name, err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: encode %s: %w", ErrPersistence, name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersistence, name, err)
	}
	return nil
}
