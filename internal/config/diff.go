package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.spec", strings.TrimSpace(newCfg.Schedule.Spec)),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	if oldCfg.Tick != newCfg.Tick {
		changed = append(changed, "tick")
		attrs = append(attrs,
			logx.Int("tick.fixed_limit", newCfg.Tick.FixedLimit),
			logx.Int("tick.horizon_days", newCfg.Tick.HorizonDays),
			logx.Int("tick.tick_hours", newCfg.Tick.TickHours),
			logx.Int("tick.rate_per_sec", newCfg.Tick.RatePerSec),
		)
	}

	if oldCfg.Queue != newCfg.Queue {
		changed = append(changed, "queue")
		attrs = append(attrs,
			logx.String("queue.driver", strings.TrimSpace(newCfg.Queue.Driver)),
			logx.Bool("queue.path_set", strings.TrimSpace(newCfg.Queue.Path) != ""),
			logx.Bool("queue.url_set", strings.TrimSpace(newCfg.Queue.URL) != ""),
		)
	}

	if oldCfg.Repository != newCfg.Repository {
		changed = append(changed, "repository")
		attrs = append(attrs,
			logx.String("repository.base_url", strings.TrimSpace(newCfg.Repository.BaseURL)),
			logx.String("repository.timeout", strings.TrimSpace(newCfg.Repository.Timeout)),
		)
	}

	if oldCfg.Ledger != newCfg.Ledger {
		changed = append(changed, "ledger")
		attrs = append(attrs,
			logx.String("ledger.driver", strings.TrimSpace(newCfg.Ledger.Driver)),
			logx.Bool("ledger.path_set", strings.TrimSpace(newCfg.Ledger.Path) != ""),
		)
	}

	// Notifier section may be nil (omitted = disabled). Never log the
	// telegram token itself, only whether it is set.
	if !notifierEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		n := newCfg.Notifier
		if n == nil {
			n = &NotifierConfig{}
		}
		attrs = append(attrs,
			logx.Bool("notifier.enabled", n.Enabled),
			logx.Int("notifier.workers", n.Workers),
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Bool("notifier.telegram_set", n.Telegram != nil && strings.TrimSpace(n.Telegram.Token) != ""),
			logx.Bool("notifier.smtp_set", n.SMTP != nil),
		)
	}

	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func notifierEqual(a, b *NotifierConfig) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return reflect.DeepEqual(*a, *b)
}
