package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kv_bot/internal/model"
)

const (
	cmdMode     = "mode"
	cmdSettings = "settings"
)

func modeKeyboard(current model.NotificationMode) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(model.Modes))
	for _, m := range model.Modes {
		label := string(m)
		if m == current {
			label = "• " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cmdMode+":"+string(m)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}

	b.log.Info("callback", "action", action, "arg", arg, "chat_id", chatID)

	switch action {
	case cmdMode:
		mode, err := model.ParseMode(arg)
		if err != nil {
			return
		}
		b.setMode(ctx, chatID, mode)
	case cmdSettings:
		b.handleSettings(ctx, chatID)
	}
}
