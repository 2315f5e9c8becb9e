package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// telegramSender posts summaries to an operator chat.
type telegramSender struct {
	bot    *tele.Bot
	chatID int64
}

// NewTelegram builds a Telegram sender from config.
func NewTelegram(cfg TelegramConfig) (Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b, chatID: cfg.ChatID}, nil
}

func (t *telegramSender) Name() string { return "telegram" }

func (t *telegramSender) Send(ctx context.Context, msg Message) error {
	text := msg.Subject + "\n\n" + msg.Body
	// Telegram caps messages at 4096 chars.
	if len(text) > 4000 {
		text = text[:3997] + "..."
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, text)
	return err
}
