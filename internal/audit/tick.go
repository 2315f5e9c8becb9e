package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/metrics"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Runner executes one audit tick: plan how many items to enqueue, enqueue
// the next slice of the corpus, drain the queue, then send the aggregate
// mismatch summary.
//
// Execution is single-threaded and synchronous; the caller (scheduler)
// provides the cadence and must not overlap invocations.
type Runner struct {
	Config   TickConfig
	Queue    Queue
	Source   Source
	Ledger   Ledger
	Notifier Notifier
	Drainer  *Drainer

	Log logx.Logger
}

// TickReport describes what one tick did.
type TickReport struct {
	Limit      int
	Enqueued   int
	Drain      DrainReport
	Unresolved int
	Took       time.Duration
}

// RunTick performs plan → enqueue → drain → notify to completion.
// Config errors surface before any queue mutation.
func (r *Runner) RunTick(ctx context.Context) (TickReport, error) {
	start := time.Now()
	var rep TickReport

	if err := r.Config.Validate(); err != nil {
		return rep, err
	}

	total, err := r.Source.TotalObjectCount(ctx)
	if err != nil {
		return rep, fmt.Errorf("total object count: %w", err)
	}
	depth, err := r.Queue.Depth(ctx)
	if err != nil {
		return rep, fmt.Errorf("queue depth: %w", err)
	}

	limit, err := ComputeLimit(r.Config, total, depth)
	if err != nil {
		return rep, err
	}
	rep.Limit = limit

	enqueued, err := r.enqueue(ctx, total, limit)
	if err != nil {
		return rep, err
	}
	rep.Enqueued = enqueued
	metrics.ItemsEnqueued.Add(float64(enqueued))

	drainRep, err := r.Drainer.Drain(ctx)
	rep.Drain = drainRep
	if err != nil {
		return rep, fmt.Errorf("drain: %w", err)
	}
	metrics.ItemsValidated.Add(float64(len(drainRep.Succeeded)))
	metrics.ItemsFailed.Add(float64(len(drainRep.Failed)))

	if err := r.settle(ctx, drainRep); err != nil {
		return rep, err
	}

	unresolved, err := r.Ledger.Unresolved(ctx)
	if err != nil {
		return rep, fmt.Errorf("unresolved mismatches: %w", err)
	}
	rep.Unresolved = len(unresolved)
	metrics.UnresolvedMismatches.Set(float64(len(unresolved)))

	if depth, err := r.Queue.Depth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}

	if r.Notifier != nil {
		summary := Summary{
			Unresolved: unresolved,
			TickStats: TickStats{
				Enqueued:  enqueued,
				Succeeded: len(drainRep.Succeeded),
				Failed:    len(drainRep.Failed),
			},
		}
		if err := r.Notifier.SendMismatchSummary(ctx, summary); err != nil {
			// Notification failures don't invalidate the audit work.
			r.Log.Error("mismatch summary notification failed", logx.Err(err))
		}
	}

	rep.Took = time.Since(start)
	metrics.TicksRun.Inc()
	metrics.TickDuration.Observe(rep.Took.Seconds())

	r.Log.Info("tick complete",
		logx.Int("limit", limit),
		logx.Int("enqueued", enqueued),
		logx.Int("succeeded", len(drainRep.Succeeded)),
		logx.Int("failed", len(drainRep.Failed)),
		logx.Int("unresolved", rep.Unresolved),
		logx.Duration("took", rep.Took),
	)
	return rep, nil
}

// enqueue advances the persistent sweep cursor by limit identifiers,
// wrapping around the corpus so every object is revisited eventually.
func (r *Runner) enqueue(ctx context.Context, total, limit int) (int, error) {
	if limit <= 0 || total <= 0 {
		return 0, nil
	}
	if limit > total {
		limit = total
	}

	cursor, err := r.Ledger.GetCursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep cursor: %w", err)
	}
	if cursor >= total || cursor < 0 {
		cursor = 0
	}

	ids, err := r.Source.ListObjectIdentifiers(ctx, cursor, limit)
	if err != nil {
		return 0, fmt.Errorf("list identifiers: %w", err)
	}
	// Wrap around to the start of the corpus when the tail comes up short.
	if len(ids) < limit && cursor > 0 {
		rest, err := r.Source.ListObjectIdentifiers(ctx, 0, limit-len(ids))
		if err != nil {
			return 0, fmt.Errorf("list identifiers (wrap): %w", err)
		}
		ids = append(ids, rest...)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	items := make([]WorkItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, WorkItem{ID: id})
	}
	if err := r.Queue.Enqueue(ctx, items...); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	next := (cursor + len(ids)) % total
	if err := r.Ledger.PutCursor(ctx, next); err != nil {
		return len(ids), fmt.Errorf("advance cursor: %w", err)
	}
	return len(ids), nil
}

// settle records this tick's failures in the ledger and clears mismatches
// for items that now validate.
func (r *Runner) settle(ctx context.Context, rep DrainReport) error {
	for _, id := range rep.Failed {
		if err := r.Ledger.Record(ctx, id, "checksum validation failed"); err != nil {
			return fmt.Errorf("record mismatch %s: %w", id, err)
		}
	}
	for _, id := range rep.Succeeded {
		if err := r.Ledger.Resolve(ctx, id); err != nil {
			return fmt.Errorf("resolve mismatch %s: %w", id, err)
		}
	}
	return nil
}
