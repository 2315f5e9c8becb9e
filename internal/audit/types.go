package audit

import (
	"context"
	"errors"
)

// ID identifies a repository object. WorkItems compare equal by ID.
type ID string

// WorkItem is one unit of validation work. It is immutable once enqueued;
// Payload is opaque to the queue and the drain loop.
type WorkItem struct {
	ID      ID
	Payload []byte
}

// ErrEmpty is returned by Claim when no item is currently claimable.
var ErrEmpty = errors.New("queue: no claimable items")

// Queue is the claim-or-release work queue capability.
//
// Implementations must guarantee claim exclusivity: a claimed item is
// invisible to other claimants until it is deleted or released. Release
// restores visibility without duplicating the item. Delete and Release
// must be idempotent (deleting a deleted item or releasing an unclaimed
// item is a no-op, never an error and never a duplicate).
type Queue interface {
	// Enqueue appends items in order to the tail of the queue.
	Enqueue(ctx context.Context, items ...WorkItem) error
	// Claim hides and returns the next visible item, or ErrEmpty.
	Claim(ctx context.Context) (WorkItem, error)
	// Delete removes a claimed item permanently.
	Delete(ctx context.Context, id ID) error
	// Release returns a claimed item to visibility for a future claim.
	Release(ctx context.Context, id ID) error
	// Depth reports the number of visible (unclaimed) items.
	Depth(ctx context.Context) (int, error)
}

// Source is the repository collaborator the audit sweeps over.
type Source interface {
	// TotalObjectCount returns the number of objects in the repository.
	TotalObjectCount(ctx context.Context) (int, error)
	// ListObjectIdentifiers returns up to limit identifiers starting at
	// offset, in the repository's stable enumeration order.
	ListObjectIdentifiers(ctx context.Context, offset, limit int) ([]ID, error)
	// ValidateChecksum re-computes and compares the stored checksum.
	// (false, nil) means a genuine mismatch; a non-nil error means the
	// check could not be carried out (repository unreachable etc.).
	ValidateChecksum(ctx context.Context, id ID) (bool, error)
}

// Diagnostic is a structured warning event emitted for each item that
// fails validation during a drain.
type Diagnostic struct {
	Component string
	Message   string
	ObjectID  ID
}

// DiagnosticSink receives validation-failure diagnostics. Implementations
// must be cheap and must never block the drain loop.
type DiagnosticSink interface {
	Warn(d Diagnostic)
}

// Summary aggregates unresolved mismatch state for the per-tick notification.
type Summary struct {
	Unresolved []Mismatch
	TickStats  TickStats
}

// Mismatch is one unresolved checksum mismatch carried across ticks.
type Mismatch struct {
	ObjectID ID     `json:"object_id"`
	Detail   string `json:"detail,omitempty"`
	Count    int    `json:"count"`
}

// TickStats summarizes a single tick for notification and status reporting.
type TickStats struct {
	Enqueued  int
	Succeeded int
	Failed    int
}

// Notifier delivers the aggregate mismatch summary after each tick.
type Notifier interface {
	SendMismatchSummary(ctx context.Context, s Summary) error
}

// Ledger persists mismatch state and the sweep cursor across ticks.
type Ledger interface {
	Record(ctx context.Context, id ID, detail string) error
	Resolve(ctx context.Context, id ID) error
	Unresolved(ctx context.Context) ([]Mismatch, error)
	GetCursor(ctx context.Context) (int, error)
	PutCursor(ctx context.Context, offset int) error
}
