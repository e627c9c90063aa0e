package memory

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Sweeper periodically removes idle sessions from the store. The schedule is
// a cron expression; "@hourly" and "@daily" shortcuts are supported, and an
// unparsable expression falls back to hourly.
type Sweeper struct {
	store    *Store
	schedule string
	logger   *log.Logger
}

func NewSweeper(store *Store, schedule string, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.New(log.Writer(), "[SWEEP] ", log.LstdFlags)
	}
	return &Sweeper{store: store, schedule: schedule, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping on the configured schedule.
func (sw *Sweeper) Run(ctx context.Context) {
	for {
		wait := sw.nextInterval(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			sw.store.SweepIdle(ctx)
		}
	}
}

func (sw *Sweeper) nextInterval(now time.Time) time.Duration {
	switch sw.schedule {
	case "", "@hourly":
		return time.Hour
	case "@daily":
		return 24 * time.Hour
	}
	expr, err := cronexpr.Parse(sw.schedule)
	if err != nil {
		sw.logger.Printf("invalid sweep schedule %q, falling back to hourly: %v", sw.schedule, err)
		return time.Hour
	}
	next := expr.Next(now)
	if next.IsZero() || !next.After(now) {
		return time.Hour
	}
	return next.Sub(now)
}
