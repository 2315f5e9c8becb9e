package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	Telegram TelegramConfig
	SMTP     SMTPConfig
}

// TelegramConfig targets a Telegram chat for operator summaries.
type TelegramConfig struct {
	Enabled     bool
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

// SMTPConfig targets the site admin mailbox.
type SMTPConfig struct {
	Enabled bool
	Addr    string // host:port
	From    string
	To      []string
}

// Message is one rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Sender delivers a rendered message over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
