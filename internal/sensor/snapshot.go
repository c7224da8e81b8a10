// Package sensor holds the latest published readings of a device and the
// sources that refresh them.
package sensor

import (
	"math"
	"sync/atomic"

	"github.com/jkaflik/shutternode/internal/shutter"
)

// Snapshot is the read-only view the controller consumes. Readings start out
// unavailable (NaN) until a source publishes them.
type Snapshot struct {
	variant shutter.Variant

	distance atomic.Uint64
	reading  atomic.Uint64
}

func NewSnapshot(variant shutter.Variant) *Snapshot {
	s := &Snapshot{variant: variant}
	s.PublishDistance(math.NaN())
	s.PublishReading(math.NaN())
	return s
}

func (s *Snapshot) Distance() float64 {
	return math.Float64frombits(s.distance.Load())
}

func (s *Snapshot) CurrentReading() float64 {
	return math.Float64frombits(s.reading.Load())
}

func (s *Snapshot) UnitLabel() string {
	return s.variant.Label
}

func (s *Snapshot) Variant() shutter.Variant {
	return s.variant
}

func (s *Snapshot) PublishDistance(v float64) {
	s.distance.Store(math.Float64bits(v))
}

func (s *Snapshot) PublishReading(v float64) {
	s.reading.Store(math.Float64bits(v))
}

// Invalidate marks both readings unavailable.
func (s *Snapshot) Invalidate() {
	s.PublishDistance(math.NaN())
	s.PublishReading(math.NaN())
}
