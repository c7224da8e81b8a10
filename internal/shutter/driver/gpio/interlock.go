package gpio

import (
	"context"
	"sync"
	"time"
)

// NewInterlockedPair returns the two motor direction lines guarded by one lock,
// so the motor is never driven both ways at once.
func NewInterlockedPair(in, out *Wired) (*InterlockedLine, *InterlockedLine) {
	l := &sync.Mutex{}

	return &InterlockedLine{l, in}, &InterlockedLine{l, out}
}

type InterlockedLine struct {
	l *sync.Mutex
	w *Wired
}

func (r *InterlockedLine) EnableFor(ctx context.Context, duration time.Duration) error {
	r.l.Lock()
	defer r.l.Unlock()

	return r.w.EnableFor(ctx, duration)
}

func (r *InterlockedLine) Disable() error {
	r.l.Lock()
	defer r.l.Unlock()

	return r.w.Disable()
}
