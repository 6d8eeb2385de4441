// Package clock abstracts the current time so date-driven transitions can be tested.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock in a fixed location.
type System struct {
	Location *time.Location
}

// NewSystem returns the wall clock in loc, or UTC when loc is nil.
func NewSystem(loc *time.Location) System {
	if loc == nil {
		loc = time.UTC
	}
	return System{Location: loc}
}

// Now returns the current time in the clock's location.
func (s System) Now() time.Time {
	if s.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(s.Location)
}

// Fixed is a clock that only moves when told to.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed returns a clock stopped at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

// Now returns the stopped time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// AdvanceDays moves the clock forward by n calendar days.
func (f *Fixed) AdvanceDays(n int) {
	f.mu.Lock()
	f.now = f.now.AddDate(0, 0, n)
	f.mu.Unlock()
}
