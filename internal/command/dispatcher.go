package command

import (
	"math"
	"strconv"

	"github.com/jkaflik/shutternode/internal/config"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	HandshakeCmd   = "HAND"
	ShutterInCmd   = "shin"
	ShutterOutCmd  = "shou"
	MinLightCmd    = "minl"
	MaxLightCmd    = "maxl"
	MinTempCmd     = "mint"
	MaxTempCmd     = "maxt"
	MinDistCmd     = "mind"
	MaxDistCmd     = "maxd"
	UpdateOverride = "tupo"
)

// Handshake is the reply to HAND.
var Handshake = []byte("SHAKE\n")

var (
	ErrFrameOverflow = errors.New("command: frame overflowed")
	ErrShortFrame    = errors.New("command: frame shorter than opcode")
	ErrUnknownOpcode = errors.New("command: unknown opcode")
)

// Target receives the effects of dispatched commands.
type Target interface {
	Force(state shutter.State) error
	SetThreshold(key config.Key, value uint16) error
	SetOverride(override bool)
}

// Sender queues outbound bytes.
type Sender interface {
	Enqueue(p []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(p []byte) error

func (f SenderFunc) Enqueue(p []byte) error {
	return f(p)
}

type handler func(arg uint16) error

// Dispatcher maps frame opcodes to their effect. Every frame has at most one
// effect; protocol errors are returned to the caller and never answered.
type Dispatcher struct {
	name     string
	target   Target
	out      Sender
	handlers map[string]handler
}

func NewDispatcher(name string, target Target, out Sender) *Dispatcher {
	d := &Dispatcher{name: name, target: target, out: out}

	setter := func(key config.Key) handler {
		return func(arg uint16) error {
			return d.target.SetThreshold(key, arg)
		}
	}

	d.handlers = map[string]handler{
		HandshakeCmd: func(uint16) error {
			return d.out.Enqueue(Handshake)
		},
		ShutterInCmd: func(uint16) error {
			return d.target.Force(shutter.MovingIn)
		},
		ShutterOutCmd: func(uint16) error {
			return d.target.Force(shutter.MovingOut)
		},
		MinLightCmd: setter(config.MinLight),
		MaxLightCmd: setter(config.MaxLight),
		MinTempCmd:  setter(config.MinTemp),
		MaxTempCmd:  setter(config.MaxTemp),
		MinDistCmd:  setter(config.MinDist),
		MaxDistCmd:  setter(config.MaxDist),
		UpdateOverride: func(arg uint16) error {
			d.target.SetOverride(arg != 0)
			return nil
		},
	}

	return d
}

// Dispatch applies the frame's command.
func (d *Dispatcher) Dispatch(f serial.Frame) error {
	if f.Overflowed {
		return errors.Wrapf(ErrFrameOverflow, "%s", d.name)
	}

	if len(f.Data) < serial.OpcodeLength {
		return errors.Wrapf(ErrShortFrame, "%s: %q", d.name, f.Data)
	}

	opcode := string(f.Data[:serial.OpcodeLength])
	h, ok := d.handlers[opcode]
	if !ok {
		return errors.Wrapf(ErrUnknownOpcode, "%s: %q", d.name, opcode)
	}

	arg := ParseArgument(f.Data[serial.OpcodeLength:])
	logrus.Debugf("%s: dispatch %s %d", d.name, opcode, arg)

	return h(arg)
}

// ParseArgument reads the leading decimal digits of p. Without digits the
// argument is 0; values above 65535 saturate.
func ParseArgument(p []byte) uint16 {
	n := 0
	for n < len(p) && p[n] >= '0' && p[n] <= '9' {
		n++
	}

	if n == 0 {
		return 0
	}

	v, err := strconv.ParseUint(string(p[:n]), 10, 16)
	if err != nil {
		return math.MaxUint16
	}

	return uint16(v)
}
