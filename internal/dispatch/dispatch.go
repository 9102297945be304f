// Package dispatch delivers new listings to the subscribers whose filters
// they pass.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kv_bot/internal/filter"
	"kv_bot/internal/model"
)

// ErrDelivery reports that a message could not be handed to the messaging
// channel for one chat.
var ErrDelivery = errors.New("delivery failed")

// Sender is the outbound messaging channel.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Registry records when subscribers were last notified.
type Registry interface {
	MarkNotified(chatID int64, at time.Time)
	Persist(ctx context.Context) error
}

// Report summarizes one dispatch.
type Report struct {
	Subscribers int // subscribers with at least one match
	Sent        int // messages delivered, digest headers included
	Failed      int // subscribers whose delivery stopped on an error
}

// Dispatcher fans listings out to subscribers.
type Dispatcher struct {
	sender   Sender
	registry Registry
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Dispatcher.
func New(sender Sender, registry Registry, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		registry: registry,
		log:      log,
		now:      time.Now,
	}
}

// Dispatch sends every subscriber the listings that pass its filters.
// A failure for one subscriber never affects the others. Every subscriber
// that had matches gets its last notification time set, and the registry
// is persisted once at the end.
func (d *Dispatcher) Dispatch(ctx context.Context, listings []model.Listing, subs []model.Subscriber) Report {
	var rep Report
	if len(listings) == 0 {
		return rep
	}

	for _, sub := range subs {
		if !sub.Subscribed {
			continue
		}
		matches := filter.Apply(listings, sub.Filters)
		if len(matches) == 0 {
			continue
		}
		rep.Subscribers++

		sent, err := d.deliver(ctx, sub, matches)
		rep.Sent += sent
		if err != nil {
			rep.Failed++
			d.log.Warn("notify subscriber", "chat_id", sub.ChatID, "sent", sent, "matched", len(matches), "error", err)
		} else {
			d.log.Debug("notified subscriber", "chat_id", sub.ChatID, "sent", sent)
		}

		d.registry.MarkNotified(sub.ChatID, d.now())
	}

	if rep.Subscribers > 0 {
		if err := d.registry.Persist(ctx); err != nil {
			d.log.Error("persist subscribers after dispatch", "error", err)
		}
	}

	d.log.Info("dispatch finished",
		"listings", len(listings),
		"subscribers", rep.Subscribers,
		"sent", rep.Sent,
		"failed", rep.Failed,
	)
	return rep
}

func (d *Dispatcher) deliver(ctx context.Context, sub model.Subscriber, matches []model.Listing) (int, error) {
	sent := 0
	if sub.Mode == model.ModeDaily || sub.Mode == model.ModeWeekly {
		if err := d.send(ctx, sub.ChatID, FormatDigestHeader(sub.Mode, len(matches))); err != nil {
			return sent, err
		}
		sent++
	}
	for _, l := range matches {
		if err := d.send(ctx, sub.ChatID, FormatListing(l)); err != nil {
			return sent, fmt.Errorf("listing %d: %w", l.ID, err)
		}
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) error {
	if err := d.sender.Send(ctx, chatID, text); err != nil {
		if errors.Is(err, ErrDelivery) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}
