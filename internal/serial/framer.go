// Package serial implements the node's byte-level protocol: inbound bytes are
// accumulated into instruction frames, outbound bytes are queued in a ring
// drained by the transmitter.
package serial

import "sync"

const (
	StartDelimiter byte = ':'
	EndDelimiter   byte = '!'

	// MaxFrameLength bounds the frame body: a 4-byte opcode plus argument.
	MaxFrameLength = 50
	OpcodeLength   = 4
)

// Frame is a completed instruction body, delimiters excluded.
type Frame struct {
	Data []byte
	// Overflowed is set when bytes were discarded because the body exceeded
	// MaxFrameLength.
	Overflowed bool
}

type FrameHandler func(f Frame)

// Framer accumulates received bytes into frames. OnByteReceived may be called
// from any goroutine; the handler runs outside the framer's lock.
type Framer struct {
	mu sync.Mutex

	reading    bool
	buf        [MaxFrameLength]byte
	n          int
	overflowed bool

	handler FrameHandler
}

func NewFramer(handler FrameHandler) *Framer {
	return &Framer{handler: handler}
}

// OnByteReceived consumes one inbound byte. A start delimiter always begins a
// new frame, discarding any partial one.
func (f *Framer) OnByteReceived(b byte) {
	frame, complete := f.accept(b)
	if complete && f.handler != nil {
		f.handler(frame)
	}
}

// Feed passes every byte of p through OnByteReceived.
func (f *Framer) Feed(p []byte) {
	for _, b := range p {
		f.OnByteReceived(b)
	}
}

// Reading reports whether a frame is being accumulated.
func (f *Framer) Reading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reading
}

func (f *Framer) accept(b byte) (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case b == StartDelimiter:
		f.reading = true
		f.reset()
	case b == EndDelimiter && f.reading:
		frame := Frame{Data: append([]byte(nil), f.buf[:f.n]...), Overflowed: f.overflowed}
		f.reading = false
		f.reset()
		return frame, true
	case f.reading:
		if f.n < len(f.buf) {
			f.buf[f.n] = b
			f.n++
		} else {
			f.overflowed = true
		}
	}

	return Frame{}, false
}

func (f *Framer) reset() {
	f.n = 0
	f.overflowed = false
	f.buf = [MaxFrameLength]byte{}
}
