package bot

import (
	"context"
	"fmt"

	"kv_bot/internal/dispatch"
	"kv_bot/internal/filter"
	"kv_bot/internal/model"
	"kv_bot/internal/subscribers"
)

const listLimit = 10

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	sub, ok := b.registry.Get(chatID)
	if !ok {
		var err error
		if sub, err = b.registry.Upsert(ctx, chatID, subscribers.Update{}); err != nil {
			b.log.Error("create subscriber", "chat_id", chatID, "error", err)
		}
	}
	b.reply(ctx, chatID, fmt.Sprintf(`Welcome to KV Notify Bot!

I watch kv.ee for new listings posted directly by owners and send you the ones that match your filters.

%s
Use /help for the full command reference.`, subscriptionStatus(sub)))
}

func subscriptionStatus(sub model.Subscriber) string {
	if !sub.Subscribed {
		return "Your notifications are off. Use /subscribe to turn them on."
	}
	return fmt.Sprintf("You are subscribed to %s notifications.", sub.Mode)
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, `Commands:
/start — start the bot
/help — show this message
/subscribe — turn notifications on
/unsubscribe — turn notifications off
/settings — show your settings
/mode <immediate|daily|weekly> — how often to be notified
/list — show current listings
/notify — check for new listings now
/stop — forget me

Filters:
/set_price_min <amount> — minimum price (€)
/set_price_max <amount> — maximum price (€)
/set_area_min <area> — minimum area (m²)
/set_area_max <area> — maximum area (m²)
/set_rooms_min <rooms> — minimum rooms
/set_rooms_max <rooms> — maximum rooms
/clear_filters [name] — remove one filter or all of them`)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, subscribed bool) {
	if _, err := b.registry.Upsert(ctx, chatID, subscribers.Update{Subscribed: &subscribed}); err != nil {
		b.log.Error("update subscription", "chat_id", chatID, "error", err)
	}
	if subscribed {
		b.reply(ctx, chatID, "You are subscribed. New listings will arrive according to your /settings.")
		return
	}
	b.reply(ctx, chatID, "You are unsubscribed and will not receive notifications. Use /subscribe to turn them back on.")
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64) {
	sub, ok := b.registry.Get(chatID)
	if !ok {
		b.reply(ctx, chatID, "You need to /start the bot first.")
		return
	}
	b.replyWithKeyboard(ctx, chatID, FormatSettings(sub), modeKeyboard(sub.Mode))
}

func (b *Bot) handleMode(ctx context.Context, chatID int64, args string) {
	if args == "" {
		current := model.ModeImmediate
		if sub, ok := b.registry.Get(chatID); ok {
			current = sub.Mode
		}
		b.replyWithKeyboard(ctx, chatID, "Choose how often to be notified:", modeKeyboard(current))
		return
	}

	mode, err := ParseModeArg(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /mode immediate|daily|weekly")
		return
	}
	b.setMode(ctx, chatID, mode)
}

func (b *Bot) setMode(ctx context.Context, chatID int64, mode model.NotificationMode) {
	if _, err := b.registry.Upsert(ctx, chatID, subscribers.Update{Mode: &mode}); err != nil {
		b.log.Error("update mode", "chat_id", chatID, "error", err)
	}
	b.reply(ctx, chatID, fmt.Sprintf("Notification mode set to %s.", mode))
}

func (b *Bot) handleSetFilter(ctx context.Context, chatID int64, key model.FilterKey, args string) {
	value, err := ParseFilterValue(args)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("Usage: /%s%s <number>", setPrefix, key))
		return
	}

	current := model.Filters{}
	if sub, ok := b.registry.Get(chatID); ok {
		current = sub.Filters
	}
	if err := filter.Validate(current, key, value); err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("Invalid value: %v", err))
		return
	}

	if _, err := b.registry.Upsert(ctx, chatID, subscribers.Update{SetFilters: model.Filters{key: value}}); err != nil {
		b.log.Error("update filter", "chat_id", chatID, "filter", key, "error", err)
	}
	b.reply(ctx, chatID, fmt.Sprintf("Filter %s set to %s.", filterLabel(key), formatValue(value)))
}

func (b *Bot) handleClearFilters(ctx context.Context, chatID int64, args string) {
	keys, err := ParseClearArgs(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /clear_filters [price_min|price_max|area_min|area_max|rooms_min|rooms_max]")
		return
	}

	u := subscribers.Update{ClearFilters: keys, ResetFilters: len(keys) == 0}
	if _, err := b.registry.Upsert(ctx, chatID, u); err != nil {
		b.log.Error("clear filters", "chat_id", chatID, "error", err)
	}
	if len(keys) == 0 {
		b.reply(ctx, chatID, "All filters removed. You will be notified of every new listing.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Removed %d filter(s).", len(keys)))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	listings, err := b.listings.Current(ctx)
	if err != nil {
		b.log.Error("list current listings", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, "Error fetching listings. Please try again later.")
		return
	}

	if sub, ok := b.registry.Get(chatID); ok {
		listings = filter.Apply(listings, sub.Filters)
	}
	if len(listings) == 0 {
		b.reply(ctx, chatID, "No listings found at the moment. Try again later!")
		return
	}

	shown := listings
	if len(shown) > listLimit {
		shown = shown[:listLimit]
	}
	for _, l := range shown {
		b.reply(ctx, chatID, dispatch.FormatListing(l))
	}
	if len(listings) > listLimit {
		b.reply(ctx, chatID, fmt.Sprintf("Showing %d of %d listings. Use filters to narrow results.", listLimit, len(listings)))
	}
}

func (b *Bot) handleNotify(ctx context.Context, chatID int64) {
	if b.checker == nil {
		b.reply(ctx, chatID, "Checking is not available right now.")
		return
	}

	b.reply(ctx, chatID, "Checking for new listings... This might take a moment.")
	n := b.checker.CheckNow(ctx)
	if n == 0 {
		b.reply(ctx, chatID, "No new listings found. Check back later!")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Found %d new listing(s). Sent them to subscribers with immediate notifications.", n))
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	if err := b.registry.Remove(ctx, chatID); err != nil {
		b.log.Error("remove subscriber", "chat_id", chatID, "error", err)
	}
	b.reply(ctx, chatID, "Goodbye! Your settings have been removed. Start again anytime with /start.")
}
