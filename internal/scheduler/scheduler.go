// Package scheduler fires audit ticks on a cron cadence.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Config controls the tick cadence.
type Config struct {
	Enabled  bool
	Spec     string // cron expression or "@every 1h"; empty means derive from TickHours
	Timezone string // IANA TZ; empty means local
	// TickHours is the paced-mode interval, used when Spec is empty.
	TickHours int
}

// EffectiveSpec resolves the cron spec. An explicit Spec wins; otherwise the
// paced interval drives the cadence, falling back to hourly.
func (c Config) EffectiveSpec() string {
	if s := strings.TrimSpace(c.Spec); s != "" {
		return s
	}
	if c.TickHours > 0 {
		return fmt.Sprintf("@every %dh", c.TickHours)
	}
	return "@hourly"
}

// Job runs one audit tick.
type Job func(ctx context.Context) error

type Service struct {
	mu  sync.Mutex
	cfg Config

	parser cron.Parser
	c      *cron.Cron

	job Job
	log logx.Logger

	runCtx    context.Context
	runCancel context.CancelFunc
	stopDone  chan struct{}

	// running guards against overlapping ticks when one runs longer than
	// the cadence. The late fire is skipped, not queued.
	running atomic.Bool
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	return &Service{
		cfg: cfg,
		job: job,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Validate checks that the effective spec parses.
func (s *Service) Validate(cfg Config) error {
	if _, err := s.parser.Parse(cfg.EffectiveSpec()); err != nil {
		return fmt.Errorf("schedule spec %q: %w", cfg.EffectiveSpec(), err)
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule timezone: %w", err)
		}
	}
	return nil
}

// Apply swaps config; a running scheduler restarts when the cadence changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restart := s.cfg.EffectiveSpec() != cfg.EffectiveSpec() ||
		strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone) ||
		s.cfg.Enabled != cfg.Enabled
	s.cfg = cfg

	// runCtx == nil means Start() has not run yet; it will pick up cfg.
	if s.runCtx == nil || !restart {
		return
	}
	s.stopCronLocked()
	if cfg.Enabled {
		s.startCronLocked(s.runCtx)
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	if !s.cfg.Enabled {
		s.log.Debug("scheduler disabled; not starting")
		return
	}
	s.startCronLocked(s.runCtx)
}

func (s *Service) startCronLocked(ctx context.Context) {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	spec := s.cfg.EffectiveSpec()
	_, err := s.c.AddFunc(spec, func() { s.fire(ctx) })
	if err != nil {
		s.log.Error("schedule registration failed", logx.String("spec", spec), logx.Err(err))
		s.c = nil
		return
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("spec", spec), logx.String("tz", loc.String()))
}

func (s *Service) stopCronLocked() {
	if s.c == nil {
		return
	}
	c := s.c
	s.c = nil
	<-c.Stop().Done()
}

func (s *Service) fire(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("tick still running; skipping scheduled fire")
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in tick", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	if err := s.job(ctx); err != nil {
		s.log.Error("tick failed", logx.Err(err))
	}
}

// TriggerNow runs one tick out of band, honoring the overlap guard.
// Returns false when a tick is already in flight.
func (s *Service) TriggerNow(ctx context.Context) (bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		return false, nil
	}
	defer s.running.Store(false)
	return true, s.job(ctx)
}

// Running reports whether a tick is currently in flight.
func (s *Service) Running() bool { return s.running.Load() }

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.c == nil && s.runCancel == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	cancel := s.runCancel
	s.runCancel = nil
	s.stopCronLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	go func() {
		// wait for an in-flight tick to drain before declaring stopped
		for s.running.Load() {
			time.Sleep(10 * time.Millisecond)
		}
		s.mu.Lock()
		s.stopDone = nil
		s.runCtx = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}
