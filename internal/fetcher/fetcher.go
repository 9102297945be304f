// Package fetcher runs one poll of the listing source and separates new
// listings from ones already announced.
package fetcher

import (
	"context"
	"log/slog"

	"kv_bot/internal/model"
	"kv_bot/internal/source"
)

// SeenSet is the dedup memory the fetcher marks new listings in.
type SeenSet interface {
	MarkIfNew(id int64) bool
	Persist(ctx context.Context) error
}

// Fetcher polls the listing source with a fixed query profile.
type Fetcher struct {
	source source.Source
	query  source.Query
	seen   SeenSet
	log    *slog.Logger
}

// New creates a Fetcher. query bounds the source-side result volume only;
// per-subscriber filtering happens at dispatch.
func New(src source.Source, query source.Query, seen SeenSet, log *slog.Logger) *Fetcher {
	return &Fetcher{
		source: src,
		query:  query,
		seen:   seen,
		log:    log,
	}
}

// FetchNew returns the listings not seen before, in source order, and marks
// them seen. A listing is new exactly once, whichever caller observes it first.
// Source failures are logged and yield no listings.
func (f *Fetcher) FetchNew(ctx context.Context) []model.Listing {
	listings, err := f.source.Search(ctx, f.query)
	if err != nil {
		f.log.Error("search listings", "error", err)
		return nil
	}

	var fresh []model.Listing
	for _, l := range listings {
		if f.seen.MarkIfNew(l.ID) {
			fresh = append(fresh, l)
		}
	}

	if len(fresh) > 0 {
		if err := f.seen.Persist(ctx); err != nil {
			f.log.Error("persist seen listings", "error", err)
		}
	}

	f.log.Info("fetch cycle finished", "fetched", len(listings), "new", len(fresh))
	return fresh
}

// Current returns the listings the source reports right now without
// touching the seen-set.
func (f *Fetcher) Current(ctx context.Context) ([]model.Listing, error) {
	return f.source.Search(ctx, f.query)
}
