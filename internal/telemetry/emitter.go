package telemetry

import (
	"github.com/jkaflik/shutternode/internal/config"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StateSource exposes the controller state reported in telemetry.
type StateSource interface {
	State() shutter.State
	Override() bool
	Thresholds() config.Thresholds
}

type Sink interface {
	Send(line []byte) error
}

type SinkFunc func(line []byte) error

func (f SinkFunc) Send(line []byte) error {
	return f(line)
}

// Emitter is the periodic telemetry step.
type Emitter struct {
	name   string
	state  StateSource
	sensor shutter.Sensor
	sinks  []Sink
}

func NewEmitter(name string, state StateSource, sensor shutter.Sensor, sinks ...Sink) *Emitter {
	return &Emitter{name: name, state: state, sensor: sensor, sinks: sinks}
}

func (e *Emitter) Status() Status {
	return Status{
		DeviceName: e.name,
		Variant:    e.sensor.Variant(),
		Distance:   e.sensor.Distance(),
		Reading:    e.sensor.CurrentReading(),
		Thresholds: e.state.Thresholds(),
		Override:   e.state.Override(),
		State:      e.state.State(),
	}
}

// Emit encodes the current status and hands it to every sink. A sink without
// room skips this cycle.
func (e *Emitter) Emit() {
	line, err := Encode(e.Status())
	if err != nil {
		logrus.Errorf("%s: telemetry not sent: %s", e.name, err)
		return
	}

	for _, sink := range e.sinks {
		err := sink.Send(line)
		switch {
		case err == nil:
		case errors.Is(err, serial.ErrQueueFull):
			logrus.Debugf("%s: telemetry skipped: %s", e.name, err)
		default:
			logrus.Errorf("%s: telemetry send failed: %s", e.name, err)
		}
	}
}
