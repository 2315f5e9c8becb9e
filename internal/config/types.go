package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
)

// Config is the daemon's file configuration (YAML or JSON).
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Tick       TickConfig       `json:"tick"`
	Queue      QueueConfig      `json:"queue"`
	Repository RepositoryConfig `json:"repository"`
	Ledger     LedgerConfig     `json:"ledger"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`
	Server     ServerConfig     `json:"server,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig controls when ticks fire.
//
// Spec is a cron expression or "@every 1h" style interval. When omitted,
// the cadence is derived from tick.tick_hours (paced mode) or defaults to
// hourly (fixed mode).
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "America/Halifax"
}

// TickConfig selects the per-tick enqueue budget. Exactly one mode:
// fixed_limit, or horizon_days together with tick_hours.
type TickConfig struct {
	FixedLimit  int `json:"fixed_limit,omitempty"`
	HorizonDays int `json:"horizon_days,omitempty"`
	TickHours   int `json:"tick_hours,omitempty"`

	// RatePerSec caps validation calls against the repository API.
	// 0 disables pacing.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// Audit converts to the planner's config.
func (t TickConfig) Audit() audit.TickConfig {
	return audit.TickConfig{
		FixedLimit:  t.FixedLimit,
		HorizonDays: t.HorizonDays,
		TickHours:   t.TickHours,
	}
}

// QueueConfig selects the work-queue backend.
type QueueConfig struct {
	Driver      string `json:"driver"` // memory | sqlite | nats
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	URL         string `json:"url,omitempty"`          // nats
	Stream      string `json:"stream,omitempty"`       // nats
}

type RepositoryConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"` // Go duration string
}

// LedgerConfig selects the mismatch ledger backend.
type LedgerConfig struct {
	Driver      string `json:"driver"` // memory | file | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the async notification pipeline.
// If the whole section is omitted, notification is disabled.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	SMTP     *SMTPConfig     `json:"smtp,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	ChatID      int64  `json:"chat_id"`
	PollTimeout string `json:"poll_timeout,omitempty"` // Go duration string
}

type SMTPConfig struct {
	Addr string   `json:"addr"`
	From string   `json:"from"`
	To   []string `json:"to"`
}

// ServerConfig controls the optional status/metrics HTTP server.
//
// Prefer binding to localhost (e.g. "127.0.0.1:9090").
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// Validate checks cross-field consistency. Tick parameters are validated
// up front so a bad config never reaches the queue.
func (c *Config) Validate() error {
	if err := c.Tick.Audit().Validate(); err != nil {
		return err
	}
	if c.Tick.RatePerSec < 0 {
		return fmt.Errorf("tick.rate_per_sec must be >= 0")
	}
	if strings.TrimSpace(c.Repository.BaseURL) == "" {
		return fmt.Errorf("repository.base_url is required")
	}
	if _, err := ParseDurationField("repository.timeout", c.Repository.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("queue.busy_timeout", c.Queue.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("ledger.busy_timeout", c.Ledger.BusyTimeout); err != nil {
		return err
	}
	if n := c.Notifier; n != nil {
		for _, f := range []struct{ path, raw string }{
			{"notifier.retry_base", n.RetryBase},
			{"notifier.retry_max_delay", n.RetryMaxDelay},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
		if n.Telegram != nil {
			if _, err := ParseDurationField("notifier.telegram.poll_timeout", n.Telegram.PollTimeout); err != nil {
				return err
			}
		}
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(strings.TrimSpace(c.Schedule.Timezone)); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	return nil
}
