// Package scheduler runs the daily sweeps on cron schedules through the job queue.
package scheduler

import (
	"context"
	"log"
	"sort"

	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/jobs"
	"github.com/library-reservations/backend/internal/storage/models"
)

// SweepFunc runs one sweep to completion and reports per-record failures.
type SweepFunc func(ctx context.Context) *models.SweepResult

// Runner binds sweeps to job names and runs them one at a time per name.
type Runner struct {
	queue  *jobs.Queue
	sweeps map[string]SweepFunc
}

// NewRunner creates a runner on queue.
func NewRunner(queue *jobs.Queue) *Runner {
	return &Runner{queue: queue, sweeps: make(map[string]SweepFunc)}
}

// Add registers a sweep under name and binds it as a job handler.
func (r *Runner) Add(name string, fn SweepFunc) {
	r.sweeps[name] = fn
	r.queue.Register(name, func(ctx context.Context, _ []byte) error {
		result := fn(ctx)
		if !result.OK {
			log.Printf("Sweep %s finished with %d errors", name, len(result.Errors))
		}
		return nil
	})
}

// Names returns the registered sweep names in order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.sweeps))
	for name := range r.sweeps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named sweep now and returns its result.
// It waits for a queued run of the same sweep to finish first.
func (r *Runner) Run(ctx context.Context, name string) (*models.SweepResult, error) {
	fn, ok := r.sweeps[name]
	if !ok {
		return nil, apperr.NotFound("sweep", name)
	}

	var result *models.SweepResult
	err := r.queue.Exclusive(name, func() error {
		result = fn(ctx)
		return nil
	})
	return result, err
}
