package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/library-reservations/backend/internal/jobs"
)

// Schedule pairs a sweep name with its cron spec (with seconds field).
type Schedule struct {
	Name string
	Spec string
}

// SweepScheduler submits sweep jobs on their cron schedules.
type SweepScheduler struct {
	cron      *cron.Cron
	submitter jobs.Submitter
	schedules []Schedule
	entries   map[string]cron.EntryID
}

// NewSweepScheduler creates a scheduler evaluating specs in loc.
func NewSweepScheduler(submitter jobs.Submitter, loc *time.Location, schedules []Schedule) *SweepScheduler {
	if loc == nil {
		loc = time.UTC
	}

	return &SweepScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		submitter: submitter,
		schedules: schedules,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start registers every schedule and begins the scheduler.
func (s *SweepScheduler) Start() error {
	log.Println("Starting sweep scheduler...")

	for _, sched := range s.schedules {
		name := sched.Name
		id, err := s.cron.AddFunc(sched.Spec, func() {
			s.submit(name)
		})
		if err != nil {
			return fmt.Errorf("scheduling %s with %q: %w", name, sched.Spec, err)
		}
		s.entries[name] = id
		log.Printf("Scheduled %s: %s", name, sched.Spec)
	}

	s.cron.Start()
	log.Println("Sweep scheduler started")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *SweepScheduler) Stop() {
	log.Println("Stopping sweep scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Sweep scheduler stopped")
}

// NextRun returns when the named sweep fires next, or the zero time if it is not scheduled.
func (s *SweepScheduler) NextRun(name string) time.Time {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *SweepScheduler) submit(name string) {
	if err := s.submitter.Submit(context.Background(), name, nil, 0); err != nil {
		log.Printf("Failed to submit %s: %v", name, err)
	}
}
