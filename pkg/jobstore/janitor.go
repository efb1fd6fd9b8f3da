package jobstore

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Janitor bounds memory usage of the Store by sweeping expired terminal jobs
// on a fixed interval, independent of request traffic.
type Janitor struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger

	// sweeping guards against overlapping sweeps if a tick fires while a
	// previous sweep is still running.
	sweeping atomic.Bool
}

// NewJanitor creates a janitor for store.
//
// retention is how long terminal jobs are kept after completion; interval is
// how often the sweep runs.
func NewJanitor(store *Store, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
//
// Run blocks; callers start it in its own goroutine. At most one sweep is
// active at a time.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.SweepOnce(time.Now().UTC())
		}
	}
}

// SweepOnce performs a single sweep unless one is already running.
// Returns the number of evicted jobs, or -1 if the sweep was skipped.
func (j *Janitor) SweepOnce(now time.Time) int {
	if !j.sweeping.CompareAndSwap(false, true) {
		return -1
	}
	defer j.sweeping.Store(false)

	removed := j.store.Sweep(now, j.retention)
	if removed > 0 {
		j.logger.Debug("swept expired jobs",
			zap.Int("removed", removed),
			zap.Int("remaining", j.store.Len()))
	}
	return removed
}
