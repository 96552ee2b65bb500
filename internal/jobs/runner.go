// Package jobs runs the periodic background work: the outbox sweep and the
// credit-interest accrual. One runner per job, fixed interval, single-flight.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Job is one unit of periodic work. Errors are logged, never fatal: the next
// tick tries again.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a set of jobs on their intervals. A tick that fires while the
// previous run is still going is skipped, and missed ticks are not replayed.
type Runner struct {
	jobs []Job
}

func NewRunner(jobs ...Job) *Runner { return &Runner{jobs: jobs} }

// Start launches one goroutine per job and returns immediately. The
// goroutines stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for i := range r.jobs {
		go r.loop(ctx, r.jobs[i])
	}
}

func (r *Runner) loop(ctx context.Context, j Job) {
	if j.Interval <= 0 {
		slog.Warn("job has no interval, not scheduling", "job", j.Name)
		return
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	var inFlight atomic.Bool
	for {
		select {
		case <-ctx.Done():
			slog.Info("job runner stopping", "job", j.Name)
			return
		case <-ticker.C:
			if !inFlight.CompareAndSwap(false, true) {
				slog.Warn("previous run still in progress, skipping tick", "job", j.Name)
				continue
			}
			go func() {
				defer inFlight.Store(false)
				started := time.Now()
				if err := j.Run(ctx); err != nil {
					slog.Error("job failed", "job", j.Name, "error", err, "took", time.Since(started))
					return
				}
				slog.Debug("job finished", "job", j.Name, "took", time.Since(started))
			}()
		}
	}
}
