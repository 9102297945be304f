package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"kv_bot/internal/config"
	"kv_bot/internal/dispatch"
	"kv_bot/internal/model"
	"kv_bot/internal/subscribers"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Lister returns the listings the source currently reports.
type Lister interface {
	Current(ctx context.Context) ([]model.Listing, error)
}

// Checker runs an on-demand fetch-and-dispatch cycle.
type Checker interface {
	CheckNow(ctx context.Context) int
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api      telegramAPI
	registry *subscribers.Registry
	listings Lister
	checker  Checker
	cfg      *config.Config
	limiter  *rate.Limiter
	log      *slog.Logger

	wg sync.WaitGroup
}

// New creates a Bot with the given Telegram token, subscriber registry, and config.
func New(token string, registry *subscribers.Registry, listings Lister, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	rps := cfg.SendRPS
	if rps <= 0 {
		rps = 20
	}

	return &Bot{
		api:      api,
		registry: registry,
		listings: listings,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		log:      log,
	}, nil
}

// SetChecker sets the cycle /notify runs. Until it is set, /notify reports
// that checking is unavailable.
func (b *Bot) SetChecker(c Checker) {
	b.checker = c
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every on-demand check it started has finished.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(ctx, update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Send delivers a plain-text message to chatID, pacing sends to stay under
// the Telegram rate limit.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	return b.send(ctx, msg)
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: chat %d: %w", dispatch.ErrDelivery, msg.ChatID, err)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("%w: chat %d: %w", dispatch.ErrDelivery, msg.ChatID, err)
	}
	return nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.Send(ctx, chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyWithKeyboard(ctx context.Context, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = kb
	if err := b.send(ctx, msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(ctx, chatID)
	case "subscribe":
		b.handleSubscribe(ctx, chatID, true)
	case "unsubscribe":
		b.handleSubscribe(ctx, chatID, false)
	case cmdSettings:
		b.handleSettings(ctx, chatID)
	case cmdMode:
		b.handleMode(ctx, chatID, args)
	case "clear_filters":
		b.handleClearFilters(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "notify":
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleNotify(ctx, chatID)
		}()
	case "stop":
		b.handleStop(ctx, chatID)
	default:
		if key, ok := filterCommand(cmd); ok {
			b.handleSetFilter(ctx, chatID, key, args)
			return
		}
		b.reply(ctx, chatID, "Unknown command. Use /help for a list of commands.")
	}
}
