// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without a zoneinfo database.

	"github.com/joho/godotenv"

	"kv_bot/internal/model"
	"kv_bot/internal/source"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverJSON     = "json"
)

// Listing sources.
const (
	SourceKVee = "kvee"
	SourceFeed = "feed"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM" in 24-hour notation.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// ParseWeekday parses an English weekday name such as "monday" or "mon".
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	LogLevel         string
	AllowedUsers     []int64

	StorageDriver string
	DatabasePath  string
	DatabaseURL   string
	DataDir       string
	SeenCap       int

	CheckInterval time.Duration
	DailyAt       Clock
	WeeklyDay     time.Weekday
	WeeklyAt      Clock
	Timezone      string

	ListingSource string
	FeedURL       string
	SourceBaseURL string
	SourceRPS     float64
	Query         source.Query

	SendRPS float64
}

// Load reads configuration from environment variables. Variables from a
// .env file in the working directory are applied first when the file exists;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	cfg := &Config{
		TelegramBotToken: token,
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		StorageDriver:    strings.ToLower(envOrDefault("STORAGE_DRIVER", DriverSQLite)),
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DataDir:          envOrDefault("DATA_DIR", "./data"),
		Timezone:         os.Getenv("TIMEZONE"),
		ListingSource:    strings.ToLower(envOrDefault("LISTING_SOURCE", SourceKVee)),
		FeedURL:          os.Getenv("LISTING_FEED_URL"),
		SourceBaseURL:    envOrDefault("SOURCE_BASE_URL", source.DefaultBaseURL),
	}

	var p parser
	cfg.SeenCap = p.int("SEEN_CAP", 10000)
	cfg.CheckInterval = p.duration("CHECK_INTERVAL", 15*time.Minute)
	cfg.DailyAt = p.clock("DAILY_AT", "09:00")
	cfg.WeeklyDay = p.weekday("WEEKLY_DAY", "monday")
	cfg.WeeklyAt = p.clock("WEEKLY_AT", "09:00")
	cfg.SourceRPS = p.float("SOURCE_RPS", 2)
	cfg.SendRPS = p.float("SEND_RPS", 20)
	cfg.Query = source.Query{
		DealType:     p.dealType("DEAL_TYPE", "sale"),
		PropertyType: p.propertyType("PROPERTY_TYPE"),
		County:       p.int("COUNTY", 9),
		PriceMin:     p.int("QUERY_PRICE_MIN", 50000),
		PriceMax:     p.int("QUERY_PRICE_MAX", 500000),
		RoomsMin:     p.int("QUERY_ROOMS_MIN", 1),
		AreaMin:      p.float("QUERY_AREA_MIN", 20),
		PageSize:     p.int("PAGE_SIZE", 100),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverSQLite, DriverJSON:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORAGE_DRIVER=%s", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.ListingSource {
	case SourceKVee:
	case SourceFeed:
		if c.FeedURL == "" {
			return fmt.Errorf("LISTING_FEED_URL is required for LISTING_SOURCE=%s", SourceFeed)
		}
	default:
		return fmt.Errorf("unknown LISTING_SOURCE %q", c.ListingSource)
	}

	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive, got %s", c.CheckInterval)
	}
	if c.SeenCap < 1 {
		return fmt.Errorf("SEEN_CAP must be at least 1, got %d", c.SeenCap)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone cadences are scheduled in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser reads typed values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return d
}

func (p *parser) clock(key, def string) Clock {
	raw := envOrDefault(key, def)
	c, err := ParseClock(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return c
}

func (p *parser) weekday(key, def string) time.Weekday {
	raw := envOrDefault(key, def)
	d, err := ParseWeekday(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return d
}

func (p *parser) dealType(key, def string) model.DealType {
	raw := envOrDefault(key, def)
	d, err := model.ParseDealType(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return d
}

func (p *parser) propertyType(key string) model.PropertyType {
	raw := os.Getenv(key)
	t, err := model.ParsePropertyType(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return t
}
