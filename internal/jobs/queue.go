// Package jobs provides an in-process task queue with delayed submission and retries.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrStopped is returned when submitting to a queue that has been stopped.
var ErrStopped = errors.New("job queue stopped")

// Handler processes one task payload.
type Handler func(ctx context.Context, payload []byte) error

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any, delay time.Duration) error
}

// Task is a unit of work waiting for a worker.
type Task struct {
	Name    string
	Payload []byte
	Attempt int
}

// Queue runs registered handlers on a fixed pool of workers.
// Tasks with the same name never run concurrently; delivery is at-least-once.
type Queue struct {
	handlers    map[string]Handler
	tasks       chan Task
	workers     int
	maxAttempts int
	backoff     time.Duration

	mu      sync.Mutex
	running map[string]*sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue with the given worker count and attempts per task.
func NewQueue(workers, maxAttempts int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &Queue{
		handlers:    make(map[string]Handler),
		tasks:       make(chan Task, 256),
		workers:     workers,
		maxAttempts: maxAttempts,
		backoff:     time.Second,
		running:     make(map[string]*sync.Mutex),
		timers:      make(map[*time.Timer]struct{}),
	}
}

// SetBackoff sets the base delay between attempts. Attempt n waits n times this delay.
func (q *Queue) SetBackoff(d time.Duration) {
	q.backoff = d
}

// Register binds a handler to a task name. It must be called before Start.
func (q *Queue) Register(name string, h Handler) {
	q.handlers[name] = h
}

// Start launches the workers.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	log.Printf("Starting job queue with %d workers...", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Stop cancels pending delayed tasks and waits for running ones to finish.
func (q *Queue) Stop() {
	log.Println("Stopping job queue...")

	q.mu.Lock()
	q.stopped = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	log.Println("Job queue stopped")
}

// Submit encodes payload and schedules the named task after delay.
func (q *Queue) Submit(ctx context.Context, name string, payload any, delay time.Duration) error {
	if _, ok := q.handlers[name]; !ok {
		return fmt.Errorf("submitting %s: no handler registered", name)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", name, err)
	}

	return q.schedule(ctx, Task{Name: name, Payload: data, Attempt: 1}, delay)
}

func (q *Queue) schedule(ctx context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}

	if delay <= 0 {
		return q.enqueueLocked(ctx, task)
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		if q.stopped {
			return
		}
		if err := q.enqueueLocked(context.Background(), task); err != nil {
			log.Printf("Dropping delayed job %s: %v", task.Name, err)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *Queue) enqueueLocked(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queueing %s: queue full", task.Name)
	}
}

// Exclusive runs fn while holding the named task's lock, so it never overlaps a queued run of name.
func (q *Queue) Exclusive(name string, fn func() error) error {
	lock := q.lockFor(name)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (q *Queue) lockFor(name string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()

	lock, ok := q.running[name]
	if !ok {
		lock = &sync.Mutex{}
		q.running[name] = lock
	}
	return lock
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.run(ctx, task)
		}
	}
}

func (q *Queue) run(ctx context.Context, task Task) {
	handler := q.handlers[task.Name]

	err := q.Exclusive(task.Name, func() error {
		return handler(ctx, task.Payload)
	})
	if err == nil {
		return
	}

	if task.Attempt >= q.maxAttempts || ctx.Err() != nil {
		log.Printf("Job %s failed after %d attempts: %v", task.Name, task.Attempt, err)
		return
	}

	log.Printf("Job %s attempt %d failed, retrying: %v", task.Name, task.Attempt, err)
	task.Attempt++
	if err := q.schedule(ctx, task, time.Duration(task.Attempt-1)*q.backoff); err != nil {
		log.Printf("Failed to reschedule job %s: %v", task.Name, err)
	}
}

// Decode unmarshals a task payload into v.
func Decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding job payload: %w", err)
	}
	return nil
}
