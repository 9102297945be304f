// Package scheduler triggers fetch-and-dispatch cycles on the immediate,
// daily and weekly cadences.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kv_bot/internal/dispatch"
	"kv_bot/internal/model"
)

// Fetcher returns listings that no cadence has announced yet.
type Fetcher interface {
	FetchNew(ctx context.Context) []model.Listing
}

// Dispatcher delivers listings to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, listings []model.Listing, subs []model.Subscriber) dispatch.Report
}

// Registry lists the subscribers of a cadence.
type Registry interface {
	ListSubscribed(modes ...model.NotificationMode) []model.Subscriber
}

// Schedule configures when each cadence fires.
type Schedule struct {
	Interval     time.Duration
	DailyHour    int
	DailyMinute  int
	WeeklyDay    time.Weekday
	WeeklyHour   int
	WeeklyMinute int
	Location     *time.Location
}

// Specs returns the cron expression of every cadence.
func (s Schedule) Specs() map[model.NotificationMode]string {
	return map[model.NotificationMode]string{
		model.ModeImmediate: "@every " + s.Interval.String(),
		model.ModeDaily:     fmt.Sprintf("%d %d * * *", s.DailyMinute, s.DailyHour),
		model.ModeWeekly:    fmt.Sprintf("%d %d * * %d", s.WeeklyMinute, s.WeeklyHour, int(s.WeeklyDay)),
	}
}

// Scheduler runs one fetch-and-dispatch cycle per cadence trigger.
// Scheduled cycles never overlap. A listing fetched by any cycle is new
// for that cycle only, so the cadences share one stream of new listings.
type Scheduler struct {
	fetcher    Fetcher
	dispatcher Dispatcher
	registry   Registry
	schedule   Schedule
	log        *slog.Logger

	mu sync.Mutex
}

// New creates a Scheduler. It fails if the schedule cannot be expressed as
// cron entries.
func New(f Fetcher, d Dispatcher, r Registry, schedule Schedule, log *slog.Logger) (*Scheduler, error) {
	if schedule.Interval <= 0 {
		return nil, fmt.Errorf("check interval must be positive, got %s", schedule.Interval)
	}
	if schedule.Location == nil {
		schedule.Location = time.Local
	}
	for mode, spec := range schedule.Specs() {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("parse %s schedule %q: %w", mode, spec, err)
		}
	}

	return &Scheduler{
		fetcher:    f,
		dispatcher: d,
		registry:   r,
		schedule:   schedule,
		log:        log,
	}, nil
}

// Run starts the cadence triggers and blocks until ctx is cancelled. It
// returns after any running cycle has finished.
func (s *Scheduler) Run(ctx context.Context) {
	c := cron.New(
		cron.WithLocation(s.schedule.Location),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)

	specs := s.schedule.Specs()
	for _, mode := range model.Modes {
		if _, err := c.AddFunc(specs[mode], func() { s.RunCadence(ctx, mode) }); err != nil {
			s.log.Error("add cadence", "mode", mode, "spec", specs[mode], "error", err)
			continue
		}
		s.log.Info("cadence scheduled", "mode", mode, "spec", specs[mode])
	}

	c.Start()
	<-ctx.Done()

	s.log.Info("stopping scheduler")
	<-c.Stop().Done()
}

// RunCadence fetches new listings once and dispatches them to the
// subscribers of mode. It returns the number of new listings. Calls are
// serialized.
func (s *Scheduler) RunCadence(ctx context.Context, mode model.NotificationMode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle(ctx, mode)
}

// CheckNow runs an on-demand cycle for immediate subscribers alongside any
// scheduled cycle and returns the number of new listings.
func (s *Scheduler) CheckNow(ctx context.Context) int {
	return s.cycle(ctx, model.ModeImmediate)
}

func (s *Scheduler) cycle(ctx context.Context, mode model.NotificationMode) int {
	if ctx.Err() != nil {
		return 0
	}
	start := time.Now()

	listings := s.fetcher.FetchNew(ctx)
	if len(listings) == 0 {
		s.log.Debug("no new listings", "mode", mode)
		return 0
	}

	rep := s.dispatcher.Dispatch(ctx, listings, s.registry.ListSubscribed(mode))
	s.log.Info("cadence cycle finished",
		"mode", mode,
		"new", len(listings),
		"subscribers", rep.Subscribers,
		"sent", rep.Sent,
		"failed", rep.Failed,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return len(listings)
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
