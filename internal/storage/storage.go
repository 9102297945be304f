// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"kv_bot/internal/model"
)

// ErrPersistence marks a failure to read or write a stored document.
var ErrPersistence = errors.New("persistence failure")

// Storage holds two independent documents: the subscriber registry and the
// seen-set. Each save fully rewrites its document.
type Storage interface {
	LoadSubscribers(ctx context.Context) ([]model.Subscriber, error)
	SaveSubscribers(ctx context.Context, subs []model.Subscriber) error

	// LoadSeen returns listing ids oldest first.
	LoadSeen(ctx context.Context) ([]int64, error)
	SaveSeen(ctx context.Context, ids []int64) error

	Close() error
}
