package serial

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// TxBufferSize is the default outbound ring size. One slot stays free to
// tell a full ring from an empty one.
const TxBufferSize = 128

var ErrQueueFull = errors.New("serial: outbound queue full")

// Queue is a single-producer single-consumer ring of outbound bytes. Enqueue
// belongs to the task context, DrainOne to the transmitter. Each side only
// stores its own cursor.
type Queue struct {
	buf   []byte
	read  atomic.Uint32
	write atomic.Uint32

	ready chan struct{}
}

func NewQueue(size int) *Queue {
	if size < 2 {
		size = 2
	}

	return &Queue{
		buf:   make([]byte, size),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends all of p or nothing: when the free space is smaller than
// p it returns ErrQueueFull and leaves the ring untouched.
func (q *Queue) Enqueue(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	if len(p) > q.Free() {
		return errors.Wrapf(ErrQueueFull, "%d bytes requested, %d free", len(p), q.Free())
	}

	size := uint32(len(q.buf))
	w := q.write.Load()
	for _, b := range p {
		q.buf[w] = b
		w = (w + 1) % size
	}
	q.write.Store(w)

	q.kick()

	return nil
}

// DrainOne returns the byte at the read cursor and advances it, or false when
// nothing is left to send.
func (q *Queue) DrainOne() (byte, bool) {
	r := q.read.Load()
	if r == q.write.Load() {
		return 0, false
	}

	b := q.buf[r]
	q.read.Store((r + 1) % uint32(len(q.buf)))

	return b, true
}

// Len is the number of bytes waiting to be sent.
func (q *Queue) Len() int {
	size := uint32(len(q.buf))
	return int((q.write.Load() + size - q.read.Load()) % size)
}

func (q *Queue) Free() int {
	return len(q.buf) - 1 - q.Len()
}

// Ready is signalled after bytes were enqueued.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) kick() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
