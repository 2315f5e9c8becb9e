// Package app wires configuration, storage, the audit pipeline, and the
// operational surfaces into one daemon lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/config"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/mismatch"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/notify"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/queue"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/repository"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/runtime/supervisor"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/scheduler"
	"github.com/rnaughtonwk/islandora-checksum-checker/internal/server"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	queue  queue.Queue
	ledger mismatch.Store
	repo   *repository.Client
	notif  *notify.Service

	sched *scheduler.Service
	srv   *server.Service

	// mu guards runner and lastTick; the runner is rebuilt on hot-reload.
	mu       sync.RWMutex
	runner   *audit.Runner
	lastTick *server.TickSummary
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	qcfg, err := mapQueueConfig(cfg)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(qcfg, log.With(logx.String("comp", "queue")))
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	lcfg, err := mapLedgerConfig(cfg)
	if err != nil {
		return nil, err
	}
	led, err := mismatch.Open(lcfg, log.With(logx.String("comp", "ledger")))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	rcfg, err := mapRepositoryConfig(cfg)
	if err != nil {
		return nil, err
	}
	repo, err := repository.New(rcfg, log.With(logx.String("comp", "repository")))
	if err != nil {
		return nil, fmt.Errorf("repository client: %w", err)
	}

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	senders, err := buildSenders(ncfg)
	if err != nil {
		return nil, fmt.Errorf("notification senders: %w", err)
	}
	notif := notify.New(ncfg, senders, log.With(logx.String("comp", "notify")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		queue:   q,
		ledger:  led,
		repo:    repo,
		notif:   notif,
	}
	a.runner = a.buildRunner(cfg, notif)

	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.runTick, log.With(logx.String("comp", "scheduler")))

	scfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.srv = server.New(scfg, a, a.sched, log.With(logx.String("comp", "server")))

	return a, nil
}

func (a *App) buildRunner(cfg *config.Config, notif audit.Notifier) *audit.Runner {
	var limiter *rate.Limiter
	if rps := cfg.Tick.RatePerSec; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	drainLog := a.log.With(logx.String("comp", "drain"))
	return &audit.Runner{
		Config:   cfg.Tick.Audit(),
		Queue:    a.queue,
		Source:   a.repo,
		Ledger:   a.ledger,
		Notifier: notif,
		Drainer: &audit.Drainer{
			Queue: a.queue,
			Validate: func(ctx context.Context, item audit.WorkItem) (bool, error) {
				return a.repo.ValidateChecksum(ctx, item.ID)
			},
			Sink:     &audit.LogSink{Log: drainLog},
			Limiter:  limiter,
			Log:      drainLog,
		},
		Log: a.log.With(logx.String("comp", "tick")),
	}
}

// runTick is the scheduler job: one full plan/enqueue/drain/notify pass.
func (a *App) runTick(ctx context.Context) error {
	a.mu.RLock()
	r := a.runner
	a.mu.RUnlock()

	rep, err := r.RunTick(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.lastTick = &server.TickSummary{
		At:        time.Now(),
		Limit:     rep.Limit,
		Enqueued:  rep.Enqueued,
		Succeeded: len(rep.Drain.Succeeded),
		Failed:    len(rep.Drain.Failed),
		TookMS:    rep.Took.Milliseconds(),
	}
	a.mu.Unlock()
	return nil
}

// Status implements server.StatusProvider.
func (a *App) Status(ctx context.Context) (server.Status, error) {
	depth, err := a.queue.Depth(ctx)
	if err != nil {
		return server.Status{}, fmt.Errorf("queue depth: %w", err)
	}
	unresolved, err := a.ledger.Unresolved(ctx)
	if err != nil {
		return server.Status{}, fmt.Errorf("unresolved mismatches: %w", err)
	}

	a.mu.RLock()
	last := a.lastTick
	a.mu.RUnlock()

	return server.Status{
		TickRunning: a.sched.Running(),
		QueueDepth:  depth,
		Unresolved:  unresolved,
		LastTick:    last,
	}, nil
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := a.sched.Validate(mapSchedulerConfig(cfg)); err != nil {
			return err
		}
		// Storage mappings must parse even when the sections stay unchanged.
		if _, err := mapQueueConfig(cfg); err != nil {
			return err
		}
		if _, err := mapLedgerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapRepositoryConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifyConfig(cfg); err != nil {
			return err
		}
		_, err := mapServerConfig(cfg)
		return err
	})

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.sched.Start(a.sup.Context())
	if a.srv.Enabled() {
		a.srv.Start(a.sup.Context())
	}

	a.sup.Go("config.watch", a.cfgm.Watch)

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				lastApplied = newCfg
				a.applyReload(c, newCfg, sections)
			}
		}
	})

	a.log.Info("daemon started", logx.String("config", a.cfgPath))
	return nil
}

// applyReload pushes a validated config into the running services.
// Queue, ledger, and repository drivers require a restart to change.
func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range sections {
		if s == "queue" || s == "ledger" || s == "repository" {
			a.log.Warn("storage or repository config changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	// Sender set changes require a restart; only tunables apply live.
	if ncfg, err := mapNotifyConfig(cfg); err == nil {
		a.notif.Apply(ncfg)
	}

	a.mu.Lock()
	a.runner = a.buildRunner(cfg, a.notif)
	a.mu.Unlock()

	a.sched.Apply(mapSchedulerConfig(cfg))

	if scfg, err := mapServerConfig(cfg); err == nil {
		a.srv.Reconfigure(ctx, scfg)
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping daemon")
	a.sched.Stop(ctx)
	a.srv.Stop(ctx)
	a.notif.Stop(ctx)

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}

	if cerr := a.queue.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := a.ledger.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("daemon stopped")
	_ = a.logs.Close()
	return err
}
