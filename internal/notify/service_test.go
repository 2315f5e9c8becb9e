package notify

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []Message
	failOnce bool
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce {
		f.failOnce = false
		return errors.New("transient failure")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func testSummary() audit.Summary {
	return audit.Summary{
		Unresolved: []audit.Mismatch{{ObjectID: "isl:2", Detail: "bad digest", Count: 3}},
		TickStats:  audit.TickStats{Enqueued: 5, Succeeded: 4, Failed: 1},
	}
}

func TestServiceDeliversSummary(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	s := New(Config{Enabled: true, RatePerSec: 100}, []Sender{snd}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.SendMismatchSummary(context.Background(), testSummary()); err != nil {
		t.Fatalf("SendMismatchSummary: %v", err)
	}
	waitFor(t, func() bool { return snd.count() == 1 })

	snd.mu.Lock()
	msg := snd.sent[0]
	snd.mu.Unlock()
	if !strings.Contains(msg.Subject, "1 unresolved") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "isl:2") || !strings.Contains(msg.Body, "seen 3x") {
		t.Fatalf("body = %q", msg.Body)
	}
}

func TestServiceRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{failOnce: true}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond}, []Sender{snd}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.SendMismatchSummary(context.Background(), testSummary()); err != nil {
		t.Fatalf("SendMismatchSummary: %v", err)
	}
	waitFor(t, func() bool { return snd.count() == 1 })
}

func TestServiceDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, nil, logx.Nop())
	s.Start(context.Background())
	err := s.SendMismatchSummary(context.Background(), testSummary())
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestServiceStoppedRejectsIntake(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, []Sender{&fakeSender{}}, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())

	err := s.SendMismatchSummary(context.Background(), testSummary())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestFormatSummaryNoMismatches(t *testing.T) {
	t.Parallel()
	msg := FormatSummary(audit.Summary{TickStats: audit.TickStats{Enqueued: 3, Succeeded: 3}})
	if !strings.Contains(msg.Subject, "no unresolved") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "3 enqueued, 3 verified, 0 failed") {
		t.Fatalf("body = %q", msg.Body)
	}
}

func TestFormatSummaryCapsList(t *testing.T) {
	t.Parallel()
	sum := audit.Summary{}
	for i := 0; i < maxListedMismatches+10; i++ {
		sum.Unresolved = append(sum.Unresolved, audit.Mismatch{ObjectID: audit.ID(strings.Repeat("x", 4))})
	}
	msg := FormatSummary(sum)
	if !strings.Contains(msg.Body, "and 10 more") {
		t.Fatalf("body missing truncation marker: %q", msg.Body)
	}
}

func TestRetryDelayStaysBounded(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		base     time.Duration
		maxDelay time.Duration
		attempt  int
	}{
		{name: "first retry", base: 500 * time.Millisecond, maxDelay: 10 * time.Second, attempt: 1},
		{name: "deep attempt count", base: 500 * time.Millisecond, maxDelay: 10 * time.Second, attempt: 64},
		{name: "huge base", base: math.MaxInt64 / 2, maxDelay: 10 * time.Second, attempt: 2},
		{name: "doubling past int64", base: time.Hour, maxDelay: 2 * time.Hour, attempt: 80},
		{name: "zero base falls back", base: 0, maxDelay: 0, attempt: 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for i := 0; i < 100; i++ {
				d := retryDelay(tt.base, tt.maxDelay, tt.attempt)
				if d < 0 {
					t.Fatalf("retryDelay = %v, want >= 0", d)
				}
				maxDelay := tt.maxDelay
				if maxDelay <= 0 {
					maxDelay = 10 * time.Second
				}
				if d > maxDelay {
					t.Fatalf("retryDelay = %v, want <= %v", d, maxDelay)
				}
			}
		})
	}
}

func TestDeliverSurvivesExtremeRetryConfig(t *testing.T) {
	t.Parallel()
	snd := &failingSender{}
	s := New(Config{
		Enabled:       true,
		RetryMax:      40,
		RetryBase:     math.MaxInt64 / 2,
		RetryMaxDelay: time.Millisecond,
	}, []Sender{snd}, logx.Nop())

	// Must exhaust all retries without panicking on backoff math.
	s.deliver(context.Background(), Message{Subject: "s", Body: "b"})

	if got := snd.attempts.Load(); got != 41 {
		t.Fatalf("attempts = %d, want 41", got)
	}
}

type failingSender struct {
	attempts atomic.Int32
}

func (f *failingSender) Name() string { return "failing" }

func (f *failingSender) Send(context.Context, Message) error {
	f.attempts.Add(1)
	return errors.New("permanent failure")
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	t.Parallel()
	var gotAddr, gotFrom string
	var gotMsg []byte
	snd := &smtpSender{
		addr: "mail:25",
		from: "checksumd@example.org",
		to:   []string{"admin@example.org"},
		send: func(addr, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotMsg = addr, from, msg
			return nil
		},
	}

	err := snd.Send(context.Background(), Message{Subject: "subj", Body: "body"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "mail:25" || gotFrom != "checksumd@example.org" {
		t.Fatalf("addr/from = %s/%s", gotAddr, gotFrom)
	}
	text := string(gotMsg)
	if !strings.Contains(text, "Subject: subj") || !strings.HasSuffix(text, "body") {
		t.Fatalf("message = %q", text)
	}
}
