package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"kv_bot/internal/bot"
	"kv_bot/internal/config"
	"kv_bot/internal/dispatch"
	"kv_bot/internal/fetcher"
	"kv_bot/internal/scheduler"
	"kv_bot/internal/seen"
	"kv_bot/internal/source"
	"kv_bot/internal/storage"
	"kv_bot/internal/subscribers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Error("open storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	registry := subscribers.New(store, log.With("component", "subscribers"))
	registry.Load(ctx)

	seenSet := seen.New(store, cfg.SeenCap, log.With("component", "seen"))
	seenSet.Load(ctx)

	src, closeSource, err := newSource(cfg, log.With("component", "source"))
	if err != nil {
		log.Error("create listing source", "source", cfg.ListingSource, "error", err)
		os.Exit(1)
	}
	defer closeSource()

	f := fetcher.New(src, cfg.Query, seenSet, log.With("component", "fetcher"))

	b, err := bot.New(cfg.TelegramBotToken, registry, f, cfg, log.With("component", "bot"))
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Error("load timezone", "error", err)
		os.Exit(1)
	}

	d := dispatch.New(b, registry, log.With("component", "dispatch"))
	sched, err := scheduler.New(f, d, registry, scheduler.Schedule{
		Interval:     cfg.CheckInterval,
		DailyHour:    cfg.DailyAt.Hour,
		DailyMinute:  cfg.DailyAt.Minute,
		WeeklyDay:    cfg.WeeklyDay,
		WeeklyHour:   cfg.WeeklyAt.Hour,
		WeeklyMinute: cfg.WeeklyAt.Minute,
		Location:     loc,
	}, log.With("component", "scheduler"))
	if err != nil {
		log.Error("create scheduler", "error", err)
		os.Exit(1)
	}
	b.SetChecker(sched)

	log.Info("starting bot",
		"storage", cfg.StorageDriver,
		"source", cfg.ListingSource,
		"interval", cfg.CheckInterval,
		"daily_at", cfg.DailyAt,
		"weekly", fmt.Sprintf("%s %s", cfg.WeeklyDay, cfg.WeeklyAt),
	)

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	b.Run(ctx)
	<-done

	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()
	if err := seenSet.Persist(persistCtx); err != nil {
		log.Error("persist seen listings on shutdown", "error", err)
	}
	if err := registry.Persist(persistCtx); err != nil {
		log.Error("persist subscribers on shutdown", "error", err)
	}

	log.Info("bot stopped")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return storage.NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverJSON:
		return storage.NewJSONFile(cfg.DataDir)
	default:
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
		return storage.NewSQLite(cfg.DatabasePath)
	}
}

func newSource(cfg *config.Config, log *slog.Logger) (source.Source, func(), error) {
	client := &http.Client{Timeout: 30 * time.Second}

	if cfg.ListingSource == config.SourceFeed {
		return source.NewFeed(client, cfg.FeedURL, cfg.SourceRPS, log), func() {}, nil
	}

	k, err := source.NewKVee(client, cfg.SourceBaseURL, cfg.SourceRPS, log)
	if err != nil {
		return nil, nil, err
	}
	return k, k.Close, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
