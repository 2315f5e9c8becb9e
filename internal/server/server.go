// Package server exposes the operational HTTP surface: liveness,
// Prometheus metrics, audit status, and an out-of-band tick trigger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Config controls the optional HTTP server.
//
// Prefer binding to localhost; the API has no auth of its own.
type Config struct {
	Enabled bool
	Addr    string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Status is the live view served by GET /api/status.
type Status struct {
	TickRunning bool             `json:"tick_running"`
	QueueDepth  int              `json:"queue_depth"`
	Unresolved  []audit.Mismatch `json:"unresolved"`
	LastTick    *TickSummary     `json:"last_tick,omitempty"`
}

// TickSummary is the serializable slice of the most recent tick report.
type TickSummary struct {
	At        time.Time `json:"at"`
	Limit     int       `json:"limit"`
	Enqueued  int       `json:"enqueued"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	TookMS    int64     `json:"took_ms"`
}

// StatusProvider supplies the current audit state.
type StatusProvider interface {
	Status(ctx context.Context) (Status, error)
}

// TickTrigger runs one tick out of band. ok=false means one is in flight.
type TickTrigger interface {
	TriggerNow(ctx context.Context) (ok bool, err error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	status  StatusProvider
	trigger TickTrigger

	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, status StatusProvider, trigger TickTrigger, log logx.Logger) *Service {
	return &Service{cfg: cfg, status: status, trigger: trigger, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Router builds the chi handler. Exposed for tests.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/tick", s.handleTick)
	return r
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status.Status(r.Context())
	if err != nil {
		s.log.Warn("status query failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if st.Unresolved == nil {
		st.Unresolved = []audit.Mismatch{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleTick(w http.ResponseWriter, r *http.Request) {
	ok, err := s.trigger.TriggerNow(r.Context())
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "tick already running"})
		return
	}
	if err != nil {
		s.log.Warn("manual tick failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "tick completed"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Reconfigure applies cfg and starts/stops/restarts the server if needed.
// Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !cfg.Enabled {
		if running {
			s.Stop(ctx)
		}
		return
	}
	if !running {
		s.Start(ctx)
		return
	}
	if prev != cfg {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return
		}
		// If stop is in progress, wait for it (avoid double listen).
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				// loop
			case <-ctx.Done():
				return
			}
			continue
		}
		cur := s.cfg
		s.mu.Unlock()

		if !cur.Enabled {
			return
		}

		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = "127.0.0.1:9090"
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Error("server listen failed", logx.String("addr", addr), logx.Err(err))
			return
		}

		srv := &http.Server{
			Handler:      s.Router(),
			ReadTimeout:  cur.ReadTimeout,
			WriteTimeout: cur.WriteTimeout,
			IdleTimeout:  cur.IdleTimeout,
		}

		s.mu.Lock()
		s.ln = ln
		s.srv = srv
		s.mu.Unlock()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("server stopped with error", logx.Err(err))
			}
		}()

		s.log.Info("server started", logx.String("addr", ln.Addr().String()))
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	// If a stop is already in progress, wait for it.
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
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	// Ensure listener is closed even if Shutdown is stuck.
	if ln != nil {
		_ = ln.Close()
	}

	go func() {
		defer close(done)
		shutdownCtx := ctx
		if shutdownCtx == nil {
			shutdownCtx = context.Background()
		}
		_ = srv.Shutdown(shutdownCtx)
		_ = srv.Close()
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
