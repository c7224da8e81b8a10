package shutter

import (
	"context"
	"math"
)

// State is the actuator state reported as ST0..ST3 in telemetry.
type State uint8

const (
	Closed State = iota
	Open
	MovingIn
	MovingOut
)

const (
	ShutterClosedState  = "closed"
	ShutterOpenState    = "open"
	ShutterClosingState = "closing"
	ShutterOpeningState = "opening"
)

func (s State) String() string {
	switch s {
	case Closed:
		return ShutterClosedState
	case Open:
		return ShutterOpenState
	case MovingIn:
		return ShutterClosingState
	case MovingOut:
		return ShutterOpeningState
	}

	return "unknown"
}

func (s State) Valid() bool {
	return s <= MovingOut
}

func (s State) Moving() bool {
	return s == MovingIn || s == MovingOut
}

type UpdateHandler func(state State)

// Actuator drives the shutter motor and the state indicators.
type Actuator interface {
	// Pulse moves the shutter one increment in the direction of a moving state.
	Pulse(ctx context.Context, direction State) error
	// Rest shows the steady indicator of a resting state.
	Rest(ctx context.Context, state State) error
}

// Sensor is the active sensor of a device: the distance to the shutter plus
// the variant's primary reading.
type Sensor interface {
	Distance() float64
	CurrentReading() float64
	UnitLabel() string
	Variant() Variant
}

// ValidReading reports whether v is a usable measurement. Sensors publish NaN
// while a reading is unavailable.
func ValidReading(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
