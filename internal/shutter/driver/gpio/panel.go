package gpio

import (
	"context"
	"time"

	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultPulseWidth = 50 * time.Millisecond

// Panel drives the motor direction lines and the red/yellow/green indicators.
// Red shows a closed shutter, green an open one, yellow blinks per motion pulse.
type Panel struct {
	name string

	red    *Wired
	yellow *Wired
	green  *Wired

	motorIn  *InterlockedLine
	motorOut *InterlockedLine

	pulseWidth time.Duration

	resting    shutter.State
	hasResting bool
}

type PanelLines struct {
	Red, Yellow, Green *Wired
	MotorIn, MotorOut  *Wired
}

func NewPanel(name string, lines PanelLines, pulseWidth time.Duration) *Panel {
	if pulseWidth <= 0 {
		pulseWidth = DefaultPulseWidth
	}

	in, out := NewInterlockedPair(lines.MotorIn, lines.MotorOut)

	return &Panel{
		name:       name,
		red:        lines.Red,
		yellow:     lines.Yellow,
		green:      lines.Green,
		motorIn:    in,
		motorOut:   out,
		pulseWidth: pulseWidth,
	}
}

// Pulse energises the motor line for direction together with the yellow
// indicator for one pulse width, then keeps both off for another.
func (p *Panel) Pulse(ctx context.Context, direction shutter.State) error {
	var motor *InterlockedLine
	switch direction {
	case shutter.MovingIn:
		motor = p.motorIn
	case shutter.MovingOut:
		motor = p.motorOut
	default:
		return errors.Errorf("%s: cannot pulse while %s", p.name, direction)
	}

	p.hasResting = false
	if err := p.red.Disable(); err != nil {
		return err
	}
	if err := p.green.Disable(); err != nil {
		return err
	}

	if err := p.yellow.Enable(); err != nil {
		return err
	}
	err := motor.EnableFor(ctx, p.pulseWidth)
	if derr := p.yellow.Disable(); derr != nil {
		logrus.Errorf("%s: yellow indicator: %s", p.name, derr)
	}
	if err != nil {
		return err
	}

	select {
	case <-time.After(p.pulseWidth):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rest shows the steady indicator of state. Repeated calls for the same
// state do not touch the lines again.
func (p *Panel) Rest(_ context.Context, state shutter.State) error {
	if p.hasResting && p.resting == state {
		return nil
	}

	var on, off *Wired
	switch state {
	case shutter.Closed:
		on, off = p.red, p.green
	case shutter.Open:
		on, off = p.green, p.red
	default:
		return errors.Errorf("%s: %s is not a resting state", p.name, state)
	}

	if err := p.yellow.Disable(); err != nil {
		return err
	}
	if err := off.Disable(); err != nil {
		return err
	}
	if err := on.Enable(); err != nil {
		return err
	}

	p.resting, p.hasResting = state, true
	logrus.Debugf("%s: resting indicator %s", p.name, state)

	return nil
}
