// Package scheduler runs periodic tasks cooperatively from a single goroutine.
// Work coming from other goroutines is handed over with Post and runs in the
// same goroutine, between tasks.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const postedQueueSize = 16

var ErrRunning = errors.New("scheduler: already running")

type Task func(ctx context.Context)

type task struct {
	name     string
	fn       Task
	interval time.Duration
	next     time.Time
}

type Scheduler struct {
	mu      sync.Mutex
	tasks   []*task
	running bool

	posted chan func()
}

func New() *Scheduler {
	return &Scheduler{posted: make(chan func(), postedQueueSize)}
}

// RegisterPeriodic runs fn first after initialDelay, then every interval.
// Tasks due at the same time run in registration order.
func (s *Scheduler) RegisterPeriodic(name string, fn Task, initialDelay, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("scheduler: %s interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Wrapf(ErrRunning, "register %s", name)
	}

	s.tasks = append(s.tasks, &task{name: name, fn: fn, interval: interval, next: time.Now().Add(initialDelay)})
	logrus.Debugf("scheduler: %s registered every %s", name, interval)

	return nil
}

// Post hands fn over to the scheduler goroutine. It never blocks and reports
// false when the handover queue is full.
func (s *Scheduler) Post(fn func()) bool {
	select {
	case s.posted <- fn:
		return true
	default:
		return false
	}
}

// Run executes tasks until ctx is done. A task that overruns its slot is
// rescheduled from now instead of catching up.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	tasks := s.tasks
	s.mu.Unlock()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(nextDue(tasks)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.posted:
			fn()
		case <-timer.C:
			s.runDue(ctx, tasks)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, tasks []*task) {
	for _, t := range tasks {
		now := time.Now()
		if now.Before(t.next) {
			continue
		}

		t.fn(ctx)

		t.next = t.next.Add(t.interval)
		if now = time.Now(); t.next.Before(now) {
			logrus.Tracef("scheduler: %s overran", t.name)
			t.next = now.Add(t.interval)
		}
	}
}

func nextDue(tasks []*task) time.Time {
	if len(tasks) == 0 {
		return time.Now().Add(time.Hour)
	}

	next := tasks[0].next
	for _, t := range tasks[1:] {
		if t.next.Before(next) {
			next = t.next
		}
	}

	return next
}
