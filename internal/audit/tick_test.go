package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

type fakeSource struct {
	ids  []ID
	bad  map[ID]bool
	errs map[ID]error
}

func (s *fakeSource) TotalObjectCount(context.Context) (int, error) { return len(s.ids), nil }

func (s *fakeSource) ListObjectIdentifiers(_ context.Context, offset, limit int) ([]ID, error) {
	if offset >= len(s.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.ids) {
		end = len(s.ids)
	}
	return append([]ID(nil), s.ids[offset:end]...), nil
}

func (s *fakeSource) ValidateChecksum(_ context.Context, id ID) (bool, error) {
	if err := s.errs[id]; err != nil {
		return false, err
	}
	return !s.bad[id], nil
}

type fakeLedger struct {
	mu       sync.Mutex
	cursor   int
	recorded map[ID]int
}

func newFakeLedger() *fakeLedger { return &fakeLedger{recorded: map[ID]int{}} }

func (l *fakeLedger) Record(_ context.Context, id ID, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorded[id]++
	return nil
}

func (l *fakeLedger) Resolve(_ context.Context, id ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.recorded, id)
	return nil
}

func (l *fakeLedger) Unresolved(context.Context) ([]Mismatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Mismatch
	for id, n := range l.recorded {
		out = append(out, Mismatch{ObjectID: id, Count: n})
	}
	return out, nil
}

func (l *fakeLedger) GetCursor(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor, nil
}

func (l *fakeLedger) PutCursor(_ context.Context, offset int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursor = offset
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []Summary
}

func (n *fakeNotifier) SendMismatchSummary(_ context.Context, s Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func newTestRunner(cfg TickConfig, src *fakeSource) (*Runner, *fakeQueue, *fakeLedger, *fakeNotifier) {
	q := newFakeQueue()
	led := newFakeLedger()
	not := &fakeNotifier{}
	r := &Runner{
		Config:   cfg,
		Queue:    q,
		Source:   src,
		Ledger:   led,
		Notifier: not,
		Drainer: &Drainer{
			Queue:    q,
			Validate: func(ctx context.Context, it WorkItem) (bool, error) { return src.ValidateChecksum(ctx, it.ID) },
			Sink:     &captureSink{},
		},
	}
	return r, q, led, not
}

func idRange(n int) []ID {
	ids := make([]ID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, ID(fmt.Sprintf("obj:%d", i)))
	}
	return ids
}

func TestRunTickSweepsAndNotifies(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ids: idRange(10)}
	r, q, _, not := newTestRunner(TickConfig{FixedLimit: 4}, src)

	rep, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick error: %v", err)
	}
	if rep.Limit != 4 || rep.Enqueued != 4 {
		t.Fatalf("limit/enqueued = %d/%d, want 4/4", rep.Limit, rep.Enqueued)
	}
	if len(rep.Drain.Succeeded) != 4 || len(rep.Drain.Failed) != 0 {
		t.Fatalf("drain = %d/%d, want 4/0", len(rep.Drain.Succeeded), len(rep.Drain.Failed))
	}
	if depth, _ := q.Depth(context.Background()); depth != 0 {
		t.Fatalf("queue depth = %d, want 0", depth)
	}
	if len(not.summaries) != 1 {
		t.Fatalf("summaries sent = %d, want 1", len(not.summaries))
	}
	if got := not.summaries[0].TickStats; got.Enqueued != 4 || got.Succeeded != 4 {
		t.Fatalf("summary stats = %+v", got)
	}
}

func TestRunTickCursorWrapsAround(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ids: idRange(5)}
	r, _, led, _ := newTestRunner(TickConfig{FixedLimit: 3}, src)

	if _, err := r.RunTick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if led.cursor != 3 {
		t.Fatalf("cursor after tick 1 = %d, want 3", led.cursor)
	}
	if _, err := r.RunTick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	// 5-object corpus, 3 per tick: second tick takes objects 3,4 and wraps to 0.
	if led.cursor != 1 {
		t.Fatalf("cursor after tick 2 = %d, want 1 (wrapped)", led.cursor)
	}
}

func TestRunTickRecordsAndResolvesMismatches(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ids: idRange(3), bad: map[ID]bool{"obj:1": true}}
	r, _, led, not := newTestRunner(TickConfig{FixedLimit: 3}, src)

	rep, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick error: %v", err)
	}
	if rep.Unresolved != 1 {
		t.Fatalf("unresolved = %d, want 1", rep.Unresolved)
	}
	if len(not.summaries[0].Unresolved) != 1 || not.summaries[0].Unresolved[0].ObjectID != "obj:1" {
		t.Fatalf("summary unresolved = %+v", not.summaries[0].Unresolved)
	}

	// The object is repaired; the next tick that validates it clears the ledger.
	src.bad = map[ID]bool{}
	led.cursor = 0
	if _, err := r.RunTick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	unresolved, _ := led.Unresolved(context.Background())
	if len(unresolved) != 0 {
		t.Fatalf("unresolved after repair = %+v, want none", unresolved)
	}
}

func TestRunTickConfigErrorBeforeAnyMutation(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ids: idRange(3)}
	r, q, _, not := newTestRunner(TickConfig{HorizonDays: 30}, src)

	if _, err := r.RunTick(context.Background()); err == nil {
		t.Fatal("expected config error")
	}
	if depth, _ := q.Depth(context.Background()); depth != 0 {
		t.Fatalf("config error mutated the queue: depth=%d", depth)
	}
	if len(not.summaries) != 0 {
		t.Fatal("config error must not notify")
	}
}

func TestRunTickPacedMode(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ids: idRange(1000)}
	r, _, _, _ := newTestRunner(TickConfig{HorizonDays: 100, TickHours: 12}, src)

	rep, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick error: %v", err)
	}
	if rep.Limit != 5 || rep.Enqueued != 5 {
		t.Fatalf("limit/enqueued = %d/%d, want 5/5", rep.Limit, rep.Enqueued)
	}
}

func TestRunTickFailedItemsStayQueued(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ids: idRange(2), bad: map[ID]bool{"obj:0": true, "obj:1": true}}
	r, q, _, _ := newTestRunner(TickConfig{FixedLimit: 2}, src)

	rep, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick error: %v", err)
	}
	if len(rep.Drain.Failed) != 2 {
		t.Fatalf("failed = %d, want 2", len(rep.Drain.Failed))
	}
	if depth, _ := q.Depth(context.Background()); depth != 2 {
		t.Fatalf("queue depth = %d, want 2 (failures released for retry)", depth)
	}
}
