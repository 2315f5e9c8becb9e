package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
)

func items(ids ...string) []audit.WorkItem {
	out := make([]audit.WorkItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, audit.WorkItem{ID: audit.ID(id)})
	}
	return out
}

func TestMemoryFIFOOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemory()
	if err := q.Enqueue(ctx, items("a", "b", "c")...); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for _, want := range []audit.ID{"a", "b", "c"} {
		it, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if it.ID != want {
			t.Fatalf("claimed %s, want %s", it.ID, want)
		}
	}
	if _, err := q.Claim(ctx); !errors.Is(err, audit.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestMemoryClaimHidesItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemory()
	_ = q.Enqueue(ctx, items("a")...)

	if _, err := q.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Fatalf("claimed item still visible, depth=%d", depth)
	}
	if _, err := q.Claim(ctx); !errors.Is(err, audit.ErrEmpty) {
		t.Fatalf("claimed item claimable again: %v", err)
	}
}

func TestMemoryReleaseReappendsAtTail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemory()
	_ = q.Enqueue(ctx, items("a", "b")...)

	it, _ := q.Claim(ctx)
	if err := q.Release(ctx, it.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if depth, _ := q.Depth(ctx); depth != 2 {
		t.Fatalf("depth = %d, want 2", depth)
	}

	next, _ := q.Claim(ctx)
	if next.ID != "b" {
		t.Fatalf("released item jumped the queue: got %s, want b", next.ID)
	}
}

func TestMemoryDeleteAndReleaseIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemory()
	_ = q.Enqueue(ctx, items("a")...)

	it, _ := q.Claim(ctx)
	if err := q.Delete(ctx, it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Double delete, release after delete, release of unknown id: all no-ops.
	if err := q.Delete(ctx, it.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := q.Release(ctx, it.ID); err != nil {
		t.Fatalf("Release after Delete: %v", err)
	}
	if err := q.Release(ctx, "never-seen"); err != nil {
		t.Fatalf("Release of unknown id: %v", err)
	}
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Fatalf("idempotent ops duplicated items: depth=%d", depth)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()
	q, err := Open(Config{Driver: "memory"}, logxNop())
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	defer q.Close()
	if _, ok := q.(*Memory); !ok {
		t.Fatalf("Open(memory) = %T", q)
	}

	if _, err := Open(Config{Driver: "bogus"}, logxNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
