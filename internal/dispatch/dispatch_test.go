package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"kv_bot/internal/model"
	"kv_bot/internal/storage"
	"kv_bot/internal/subscribers"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[int64]bool
}

func (m *mockSender) Send(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[chatID] {
		return errors.New("telegram: Forbidden: bot was blocked by the user")
	}
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *mockSender) countFor(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			n++
		}
	}
	return n
}

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func newTestDispatcher(t *testing.T, sender Sender, subs ...model.Subscriber) (*Dispatcher, *subscribers.Registry, *storage.SQL) {
	t.Helper()
	db, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.SaveSubscribers(context.Background(), subs); err != nil {
		t.Fatalf("seed subscribers: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := subscribers.New(db, log)
	reg.Load(context.Background())

	d := New(sender, reg, log)
	d.now = func() time.Time { return fixedNow }
	return d, reg, db
}

func subscriber(chatID int64, mode model.NotificationMode, filters model.Filters) model.Subscriber {
	s := model.NewSubscriber(chatID)
	s.Mode = mode
	if filters != nil {
		s.Filters = filters
	}
	return s
}

var listings = []model.Listing{
	{ID: 1, URL: "https://www.kv.ee/1", Price: 80000, Rooms: intPtr(2), Area: floatPtr(45)},
	{ID: 2, URL: "https://www.kv.ee/2", Price: 120000, Rooms: intPtr(3), Area: floatPtr(60)},
	{ID: 3, URL: "https://www.kv.ee/3", Price: 400000, Rooms: intPtr(5), Area: floatPtr(150)},
}

func TestDispatchMatchesFiltersPerSubscriber(t *testing.T) {
	sender := &mockSender{}
	d, _, _ := newTestDispatcher(t, sender,
		subscriber(10, model.ModeImmediate, model.Filters{model.PriceMax: 100000}),
		subscriber(20, model.ModeImmediate, nil),
		subscriber(30, model.ModeImmediate, model.Filters{model.RoomsMin: 3, model.AreaMax: 100}),
	)

	rep := d.Dispatch(context.Background(), listings, []model.Subscriber{
		subscriber(10, model.ModeImmediate, model.Filters{model.PriceMax: 100000}),
		subscriber(20, model.ModeImmediate, nil),
		subscriber(30, model.ModeImmediate, model.Filters{model.RoomsMin: 3, model.AreaMax: 100}),
	})

	if diff := cmp.Diff(Report{Subscribers: 3, Sent: 5}, rep); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	want := []sentMessage{
		{ChatID: 10, Text: FormatListing(listings[0])},
		{ChatID: 20, Text: FormatListing(listings[0])},
		{ChatID: 20, Text: FormatListing(listings[1])},
		{ChatID: 20, Text: FormatListing(listings[2])},
		{ChatID: 30, Text: FormatListing(listings[1])},
	}
	if diff := cmp.Diff(want, sender.messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchIsolatesDeliveryFailures(t *testing.T) {
	subs := []model.Subscriber{
		subscriber(1, model.ModeImmediate, nil),
		subscriber(2, model.ModeImmediate, nil),
		subscriber(3, model.ModeImmediate, nil),
	}
	sender := &mockSender{failFor: map[int64]bool{2: true}}
	d, reg, db := newTestDispatcher(t, sender, subs...)

	rep := d.Dispatch(context.Background(), listings[:1], subs)

	if diff := cmp.Diff(Report{Subscribers: 3, Sent: 2, Failed: 1}, rep); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if sender.countFor(1) != 1 || sender.countFor(3) != 1 {
		t.Errorf("healthy subscribers got %d and %d messages, want 1 each", sender.countFor(1), sender.countFor(3))
	}

	for _, chatID := range []int64{1, 2, 3} {
		s, ok := reg.Get(chatID)
		if !ok {
			t.Fatalf("subscriber %d missing", chatID)
		}
		if s.LastNotification == nil || !s.LastNotification.Equal(fixedNow) {
			t.Errorf("subscriber %d last notification = %v, want %v", chatID, s.LastNotification, fixedNow)
		}
	}

	stored, err := db.LoadSubscribers(context.Background())
	if err != nil {
		t.Fatalf("load subscribers: %v", err)
	}
	for _, s := range stored {
		if s.LastNotification == nil {
			t.Errorf("subscriber %d last notification not persisted", s.ChatID)
		}
	}
}

func TestDispatchStopsSubscriberAtFirstFailure(t *testing.T) {
	sender := &mockSender{failFor: map[int64]bool{7: true}}
	sub := subscriber(7, model.ModeImmediate, nil)
	d, _, _ := newTestDispatcher(t, sender, sub)

	rep := d.Dispatch(context.Background(), listings, []model.Subscriber{sub})
	if diff := cmp.Diff(Report{Subscribers: 1, Failed: 1}, rep); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchSkipsUnsubscribedAndUnmatched(t *testing.T) {
	unsubscribed := subscriber(1, model.ModeImmediate, nil)
	unsubscribed.Subscribed = false
	picky := subscriber(2, model.ModeImmediate, model.Filters{model.PriceMax: 1000})

	sender := &mockSender{}
	d, reg, _ := newTestDispatcher(t, sender, unsubscribed, picky)

	rep := d.Dispatch(context.Background(), listings, []model.Subscriber{unsubscribed, picky})

	if diff := cmp.Diff(Report{}, rep); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if len(sender.messages) != 0 {
		t.Errorf("sent %d messages, want none", len(sender.messages))
	}
	for _, chatID := range []int64{1, 2} {
		s, _ := reg.Get(chatID)
		if s.LastNotification != nil {
			t.Errorf("subscriber %d last notification set without matches", chatID)
		}
	}
}

func TestDispatchDigestHeader(t *testing.T) {
	tests := []struct {
		name string
		mode model.NotificationMode
		want []string
	}{
		{
			name: "immediate has no header",
			mode: model.ModeImmediate,
			want: []string{FormatListing(listings[0]), FormatListing(listings[1])},
		},
		{
			name: "daily",
			mode: model.ModeDaily,
			want: []string{"Your daily digest: 2 new listings today.", FormatListing(listings[0]), FormatListing(listings[1])},
		},
		{
			name: "weekly",
			mode: model.ModeWeekly,
			want: []string{"Your weekly digest: 2 new listings this week.", FormatListing(listings[0]), FormatListing(listings[1])},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			sub := subscriber(5, tt.mode, model.Filters{model.PriceMax: 200000})
			d, _, _ := newTestDispatcher(t, sender, sub)

			d.Dispatch(context.Background(), listings, []model.Subscriber{sub})

			var got []string
			for _, m := range sender.messages {
				got = append(got, m.Text)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDispatchNoListings(t *testing.T) {
	sender := &mockSender{}
	sub := subscriber(1, model.ModeImmediate, nil)
	d, _, _ := newTestDispatcher(t, sender, sub)

	if diff := cmp.Diff(Report{}, d.Dispatch(context.Background(), nil, []model.Subscriber{sub})); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}
