package gpio

import (
	"context"
	"time"

	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
)

type SetPin interface {
	High() error
	Low() error
}

type Mcp23017Pin struct {
	device *mcp23017.Device
	pin    uint8
}

func NewMcp23017Pin(device *mcp23017.Device, pin uint8) (p *Mcp23017Pin, err error) {
	p = &Mcp23017Pin{}
	p.device = device
	p.pin = pin
	err = p.device.PinMode(pin, mcp23017.OUTPUT)
	return p, err
}

func (m *Mcp23017Pin) High() error {
	return m.device.DigitalWrite(m.pin, mcp23017.HIGH)
}

func (m *Mcp23017Pin) Low() error {
	return m.device.DigitalWrite(m.pin, mcp23017.LOW)
}

// Dumb is a pin without hardware behind it, for dry runs.
type Dumb struct {
	Name string

	high bool
}

func (p *Dumb) High() error {
	if !p.high {
		logrus.Tracef("%s: dumb pin high", p.Name)
	}
	p.high = true
	return nil
}

func (p *Dumb) Low() error {
	if p.high {
		logrus.Tracef("%s: dumb pin low", p.Name)
	}
	p.high = false
	return nil
}

func (p *Dumb) IsHigh() bool {
	return p.high
}

// Wired is an output line that may be wired active-low.
type Wired struct {
	Pin          SetPin
	NormalClosed bool
}

// EnableFor drives the line active for duration, then releases it. It returns
// early with the context's error when ctx is done.
func (p *Wired) EnableFor(ctx context.Context, duration time.Duration) error {
	after := time.NewTimer(duration)
	defer after.Stop()

	if err := p.Enable(); err != nil {
		return err
	}
	defer func() {
		if err := p.Disable(); err != nil {
			logrus.Error(err)
		}
	}()

	select {
	case <-after.C:
		return nil
	case <-ctx.Done():
		logrus.Debug("wired pin context exit")
		return ctx.Err()
	}
}

func (p *Wired) Enable() error {
	if !p.NormalClosed {
		return p.Pin.Low()
	}

	return p.Pin.High()
}

func (p *Wired) Disable() error {
	if !p.NormalClosed {
		return p.Pin.High()
	}

	return p.Pin.Low()
}
