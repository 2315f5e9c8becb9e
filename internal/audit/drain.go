package audit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// DrainReport lists the per-item outcomes of one drain call.
type DrainReport struct {
	Succeeded []ID
	Failed    []ID
}

// ValidateFunc checks one claimed item. (false, nil) is a mismatch; a
// non-nil error means the check could not be performed. Both outcomes
// release the item for a later retry.
type ValidateFunc func(ctx context.Context, item WorkItem) (bool, error)

// Drainer claims items one at a time until the queue is observed empty,
// deleting validated items and releasing failures.
//
// Validation failures never abort the loop; queue errors do, and are
// returned as fatal for the current tick. Items retry indefinitely across
// ticks until they pass or are removed externally.
type Drainer struct {
	Queue    Queue
	Validate ValidateFunc
	Sink     DiagnosticSink

	// Limiter, when set, paces validation calls to avoid hammering the
	// repository API. It only delays work, it never drops items.
	Limiter *rate.Limiter

	Log logx.Logger
}

// Drain runs one drain pass to completion.
//
// A released item is not re-attempted within the same call: the loop tracks
// the IDs it has already claimed this pass, and when a released item comes
// around again it is released untouched and the pass ends. This keeps the
// loop terminating even when every item fails, leaving queue depth unchanged.
func (d *Drainer) Drain(ctx context.Context) (DrainReport, error) {
	var rep DrainReport
	seen := make(map[ID]bool)

	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		item, err := d.Queue.Claim(ctx)
		if errors.Is(err, ErrEmpty) {
			return rep, nil
		}
		if err != nil {
			return rep, fmt.Errorf("claim: %w", err)
		}

		if seen[item.ID] {
			// Already attempted this pass; leave it for the next tick.
			if err := d.Queue.Release(ctx, item.ID); err != nil {
				return rep, fmt.Errorf("release %s: %w", item.ID, err)
			}
			return rep, nil
		}
		seen[item.ID] = true

		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				// Shutting down; put the claimed item back first.
				_ = d.Queue.Release(context.WithoutCancel(ctx), item.ID)
				return rep, err
			}
		}

		ok, verr := d.Validate(ctx, item)
		if ok && verr == nil {
			if err := d.Queue.Delete(ctx, item.ID); err != nil {
				return rep, fmt.Errorf("delete %s: %w", item.ID, err)
			}
			rep.Succeeded = append(rep.Succeeded, item.ID)
			d.Log.Debug("checksum verified", logx.String("object_id", string(item.ID)))
			continue
		}

		msg := "checksum mismatch"
		if verr != nil {
			msg = "validation error: " + verr.Error()
		}
		if d.Sink != nil {
			d.Sink.Warn(Diagnostic{Component: "audit.drain", Message: msg, ObjectID: item.ID})
		}
		if err := d.Queue.Release(ctx, item.ID); err != nil {
			return rep, fmt.Errorf("release %s: %w", item.ID, err)
		}
		rep.Failed = append(rep.Failed, item.ID)
	}
}

// LogSink emits diagnostics through a logx.Logger at warning level.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Warn(d Diagnostic) {
	s.Log.Warn(d.Message,
		logx.String("component", d.Component),
		logx.String("object_id", string(d.ObjectID)),
	)
}
