package audit

import (
	"errors"
	"fmt"
)

// ErrConfig marks invalid or inconsistent tick parameters. Config errors
// fail fast: they are reported before any enqueue or drain action.
var ErrConfig = errors.New("invalid tick config")

// TickConfig selects how many items each tick enqueues.
//
// Exactly one mode must be configured:
//   - fixed: FixedLimit > 0, horizon fields zero. Each tick tops the queue
//     up to FixedLimit, so a lagging drain never grows the queue unbounded.
//   - paced: HorizonDays > 0 and TickHours > 0, FixedLimit zero. Each tick
//     enqueues enough items to sweep the whole corpus within HorizonDays
//     assuming one tick every TickHours, regardless of current queue depth.
//     Pacing trades burst-smoothing for a guaranteed sweep deadline.
//
// A zero field means "absent". The horizon fields must be set together.
type TickConfig struct {
	FixedLimit  int
	HorizonDays int
	TickHours   int
}

// Paced reports whether the time-based mode is configured.
func (c TickConfig) Paced() bool { return c.HorizonDays != 0 || c.TickHours != 0 }

// Validate checks the tick parameters. All violations wrap ErrConfig.
func (c TickConfig) Validate() error {
	if c.FixedLimit < 0 {
		return fmt.Errorf("%w: fixed_limit must be a positive integer, got %d", ErrConfig, c.FixedLimit)
	}
	if c.HorizonDays < 0 {
		return fmt.Errorf("%w: horizon_days must be a positive integer, got %d", ErrConfig, c.HorizonDays)
	}
	if c.TickHours < 0 {
		return fmt.Errorf("%w: tick_hours must be a positive integer, got %d", ErrConfig, c.TickHours)
	}
	if (c.HorizonDays == 0) != (c.TickHours == 0) {
		return fmt.Errorf("%w: horizon_days and tick_hours must be supplied together", ErrConfig)
	}
	if c.Paced() && c.FixedLimit != 0 {
		return fmt.Errorf("%w: fixed_limit and horizon pacing are mutually exclusive", ErrConfig)
	}
	if !c.Paced() && c.FixedLimit == 0 {
		return fmt.Errorf("%w: either fixed_limit or horizon_days/tick_hours is required", ErrConfig)
	}
	return nil
}

// ComputeLimit returns how many items to enqueue this tick. Never negative.
//
// Fixed mode:  max(0, FixedLimit - currentQueueDepth).
// Paced mode:  ceil(totalItemCount / HorizonDays * TickHours / 24),
// independent of queue depth.
func ComputeLimit(cfg TickConfig, totalItemCount, currentQueueDepth int) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if totalItemCount < 0 {
		totalItemCount = 0
	}
	if currentQueueDepth < 0 {
		currentQueueDepth = 0
	}

	if cfg.Paced() {
		// Integer ceiling of total*tickHours / (horizonDays*24); exact, no
		// float rounding.
		num := totalItemCount * cfg.TickHours
		den := cfg.HorizonDays * 24
		return (num + den - 1) / den, nil
	}

	limit := cfg.FixedLimit - currentQueueDepth
	if limit < 0 {
		limit = 0
	}
	return limit, nil
}
