package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers events as messages to a fixed Telegram chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
}

// NewTelegram authenticates against the Telegram Bot API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// Notify sends the formatted event to the configured chat.
func (t *Telegram) Notify(_ context.Context, ev Event) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatEvent(ev))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
