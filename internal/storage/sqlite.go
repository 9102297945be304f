package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"kv_bot/internal/model"
	"kv_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQL implements Storage on a relational database (SQLite or Postgres).
type SQL struct {
	db       *sql.DB
	postgres bool
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQL{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// LoadSubscribers returns every stored subscriber ordered by chat id.
func (s *SQL) LoadSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, notification_mode, filters, subscribed, last_notification
		 FROM subscribers ORDER BY chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query subscribers: %w", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate subscribers: %w", ErrPersistence, err)
	}
	return subs, nil
}

// SaveSubscribers replaces the stored registry with subs.
func (s *SQL) SaveSubscribers(ctx context.Context, subs []model.Subscriber) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers`); err != nil {
		return fmt.Errorf("%w: clear subscribers: %w", ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO subscribers (chat_id, notification_mode, filters, subscribed, last_notification)
		 VALUES (?, ?, ?, ?, ?)`,
	))
	if err != nil {
		return fmt.Errorf("%w: prepare insert subscriber: %w", ErrPersistence, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sub := range subs {
		filters, err := json.Marshal(sub.Filters)
		if err != nil {
			return fmt.Errorf("%w: encode filters for %d: %w", ErrPersistence, sub.ChatID, err)
		}
		var last *string
		if sub.LastNotification != nil {
			v := sub.LastNotification.UTC().Format(timeLayout)
			last = &v
		}
		if _, err := stmt.ExecContext(ctx,
			sub.ChatID, string(sub.Mode), string(filters), boolToInt(sub.Subscribed), last,
		); err != nil {
			return fmt.Errorf("%w: insert subscriber %d: %w", ErrPersistence, sub.ChatID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit subscribers: %w", ErrPersistence, err)
	}
	return nil
}

// LoadSeen returns the stored seen-set, oldest first.
func (s *SQL) LoadSeen(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT listing_id FROM seen_listings ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: query seen listings: %w", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan seen listing: %w", ErrPersistence, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate seen listings: %w", ErrPersistence, err)
	}
	return ids, nil
}

// SaveSeen replaces the stored seen-set with ids, keeping their order.
func (s *SQL) SaveSeen(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_listings`); err != nil {
		return fmt.Errorf("%w: clear seen listings: %w", ErrPersistence, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO seen_listings (seq, listing_id) VALUES (?, ?)`))
	if err != nil {
		return fmt.Errorf("%w: prepare insert seen listing: %w", ErrPersistence, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, id); err != nil {
			return fmt.Errorf("%w: insert seen listing %d: %w", ErrPersistence, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit seen listings: %w", ErrPersistence, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQL) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (model.Subscriber, error) {
	var sub model.Subscriber
	var mode, filters string
	var subscribed int
	var last sql.NullString
	if err := row.Scan(&sub.ChatID, &mode, &filters, &subscribed, &last); err != nil {
		return sub, fmt.Errorf("%w: scan subscriber: %w", ErrPersistence, err)
	}
	sub.Mode = model.NotificationMode(mode)
	sub.Subscribed = subscribed == 1
	sub.Filters = model.Filters{}
	if err := json.Unmarshal([]byte(filters), &sub.Filters); err != nil {
		return sub, fmt.Errorf("%w: decode filters for %d: %w", ErrPersistence, sub.ChatID, err)
	}
	if last.Valid {
		t, err := time.Parse(timeLayout, last.String)
		if err == nil {
			sub.LastNotification = &t
		}
	}
	return sub, nil
}
