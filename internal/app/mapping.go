package app

import (
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/config"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/mismatch"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/notify"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/queue"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/repository"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/scheduler"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/server"
)

// The map* helpers translate file config into per-service configs,
// parsing duration strings along the way. They must stay side-effect
// free: the reload validator calls them against candidate configs.

func mapQueueConfig(cfg *config.Config) (queue.Config, error) {
	busy, err := config.ParseDurationField("queue.busy_timeout", cfg.Queue.BusyTimeout)
	if err != nil {
		return queue.Config{}, err
	}
	return queue.Config{
		Driver:      cfg.Queue.Driver,
		Path:        cfg.Queue.Path,
		BusyTimeout: busy,
		URL:         cfg.Queue.URL,
		Stream:      cfg.Queue.Stream,
	}, nil
}

func mapLedgerConfig(cfg *config.Config) (mismatch.Config, error) {
	busy, err := config.ParseDurationField("ledger.busy_timeout", cfg.Ledger.BusyTimeout)
	if err != nil {
		return mismatch.Config{}, err
	}
	return mismatch.Config{
		Driver:      cfg.Ledger.Driver,
		Path:        cfg.Ledger.Path,
		BusyTimeout: busy,
	}, nil
}

func mapRepositoryConfig(cfg *config.Config) (repository.Config, error) {
	timeout, err := config.ParseDurationOrDefault("repository.timeout", cfg.Repository.Timeout, 30*time.Second)
	if err != nil {
		return repository.Config{}, err
	}
	return repository.Config{
		BaseURL: cfg.Repository.BaseURL,
		Timeout: timeout,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notify.Config{}, nil
	}

	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}

	out := notify.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}

	if t := n.Telegram; t != nil {
		pollTimeout, err := config.ParseDurationOrDefault("notifier.telegram.poll_timeout", t.PollTimeout, 10*time.Second)
		if err != nil {
			return notify.Config{}, err
		}
		out.Telegram = notify.TelegramConfig{
			Enabled:     true,
			Token:       t.Token,
			ChatID:      t.ChatID,
			PollTimeout: pollTimeout,
		}
	}
	if s := n.SMTP; s != nil {
		out.SMTP = notify.SMTPConfig{
			Enabled: true,
			Addr:    s.Addr,
			From:    s.From,
			To:      s.To,
		}
	}
	return out, nil
}

// buildSenders constructs the delivery channels. Telegram sender creation
// reaches the Telegram API, so this runs only at startup, never in the
// reload validator.
func buildSenders(ncfg notify.Config) ([]notify.Sender, error) {
	var senders []notify.Sender
	if ncfg.Telegram.Enabled {
		snd, err := notify.NewTelegram(ncfg.Telegram)
		if err != nil {
			return nil, err
		}
		senders = append(senders, snd)
	}
	if ncfg.SMTP.Enabled {
		snd, err := notify.NewSMTP(ncfg.SMTP)
		if err != nil {
			return nil, err
		}
		senders = append(senders, snd)
	}
	return senders, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:   cfg.Schedule.Enabled,
		Spec:      cfg.Schedule.Spec,
		Timezone:  cfg.Schedule.Timezone,
		TickHours: cfg.Tick.TickHours,
	}
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	readT, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	writeT, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		return server.Config{}, err
	}
	idleT, err := config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Enabled:      cfg.Server.Enabled,
		Addr:         cfg.Server.Addr,
		ReadTimeout:  readT,
		WriteTimeout: writeT,
		IdleTimeout:  idleT,
	}, nil
}
