package notify

import (
	"context"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Service implements audit.Notifier as an async pipeline:
// queue + worker pool + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	senders []Sender

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Message
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, senders []Sender, log logx.Logger) *Service {
	s := &Service{log: log, senders: senders}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		// already running
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Message, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in notifier worker", logx.Int("worker", i), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop(i)
		}()
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	// Block new notifies.
	s.accepting = false
	s.mu.Unlock()

	// Wait for in-flight enqueues to finish, then close the queue so workers can drain.
	ch := make(chan struct{})
	go func() {
		s.sendWG.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return
	case <-ch:
	}

	func() {
		defer func() { _ = recover() }()
		close(q)
	}()

	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
	case <-done:
		if cancel != nil {
			cancel()
		}
	}

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()
}

// SendMismatchSummary renders and enqueues the per-tick summary.
func (s *Service) SendMismatchSummary(ctx context.Context, sum audit.Summary) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- FormatSummary(sum):
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(idx int) {
	s.mu.Lock()
	queue := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()
	if queue == nil || runCtx == nil {
		return
	}

	for msg := range queue {
		if err := s.limiter.Wait(runCtx); err != nil {
			return
		}
		s.deliver(runCtx, msg)
	}
}

// deliver fans one message out to every sender, retrying each with
// exponential backoff and jitter.
func (s *Service) deliver(ctx context.Context, msg Message) {
	s.mu.Lock()
	retryMax := s.cfg.RetryMax
	base := s.cfg.RetryBase
	maxDelay := s.cfg.RetryMaxDelay
	senders := s.senders
	s.mu.Unlock()

	for _, snd := range senders {
		var err error
		for attempt := 0; attempt <= retryMax; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay(base, maxDelay, attempt)):
				}
			}
			if err = snd.Send(ctx, msg); err == nil {
				break
			}
			s.log.Warn("notification send failed",
				logx.String("sender", snd.Name()),
				logx.Int("attempt", attempt+1),
				logx.Err(err),
			)
		}
		if err != nil {
			s.log.Error("notification dropped after retries",
				logx.String("sender", snd.Name()),
				logx.Err(err),
			)
		}
	}
}

// retryDelay computes the wait before retry number attempt (attempt >= 1).
// Exponential backoff base * 2^(attempt-1), clamped while doubling so large
// attempt counts or bases cannot overflow into a negative duration.
func retryDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay || d <= 0 {
			d = maxDelay
			break
		}
	}
	// Jitter 0.8..1.2
	d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if d < 0 {
		return 0
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
