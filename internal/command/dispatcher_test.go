package command

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/jkaflik/shutternode/internal/config"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopActuator struct{}

func (nopActuator) Pulse(context.Context, shutter.State) error { return nil }
func (nopActuator) Rest(context.Context, shutter.State) error  { return nil }

type staticSensor struct {
	distance, reading float64
}

func (s *staticSensor) Distance() float64        { return s.distance }
func (s *staticSensor) CurrentReading() float64  { return s.reading }
func (s *staticSensor) UnitLabel() string        { return shutter.LightVariant.Label }
func (s *staticSensor) Variant() shutter.Variant { return shutter.LightVariant }

type node struct {
	machine *shutter.Machine
	sensor  *staticSensor
	queue   *serial.Queue
	framer  *serial.Framer
	errs    []error
}

func newNode(t *testing.T, store *config.Store) *node {
	t.Helper()

	n := &node{
		sensor: &staticSensor{distance: 0, reading: 100},
		queue:  serial.NewQueue(serial.TxBufferSize),
	}
	defaults := config.Thresholds{MinLight: 10, MaxLight: 4000, MinDist: 10, MaxDist: 200}
	n.machine = shutter.NewMachine("test", nopActuator{}, n.sensor, store, store.Load(defaults))

	d := NewDispatcher("test", n.machine, n.queue)
	n.framer = serial.NewFramer(func(f serial.Frame) {
		n.errs = append(n.errs, d.Dispatch(f))
	})

	return n
}

func (n *node) send(s string) {
	n.framer.Feed([]byte(s))
}

func (n *node) open(t *testing.T) {
	require.NoError(t, n.machine.Force(shutter.MovingOut))
	n.sensor.distance = 250
	n.machine.Step(context.Background())
	require.Equal(t, shutter.Open, n.machine.State())
}

func drain(q *serial.Queue) []byte {
	var out []byte
	for {
		b, ok := q.DrainOne()
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestDispatchHandshake(t *testing.T) {
	n := newNode(t, config.NewStore(config.NewMemoryBackend()))

	n.send(":HAND!")

	assert.Equal(t, []error{nil}, n.errs)
	assert.Equal(t, []byte("SHAKE\n"), drain(n.queue))

	t.Run("reply goes to the dispatcher's own sender", func(t *testing.T) {
		var replies [][]byte
		d := NewDispatcher("test", n.machine, SenderFunc(func(p []byte) error {
			replies = append(replies, p)
			return nil
		}))

		require.NoError(t, d.Dispatch(serial.Frame{Data: []byte("HAND")}))
		assert.Equal(t, [][]byte{Handshake}, replies)
		assert.Empty(t, drain(n.queue))
	})
}

func TestDispatchForceMotion(t *testing.T) {
	for _, override := range []string{"0", "1"} {
		t.Run("shin while open with override "+override, func(t *testing.T) {
			n := newNode(t, config.NewStore(config.NewMemoryBackend()))
			n.open(t)

			n.send(":tupo" + override + "!:shin!")
			assert.Equal(t, shutter.MovingIn, n.machine.State())
		})
	}

	n := newNode(t, config.NewStore(config.NewMemoryBackend()))
	n.send(":shou!")
	assert.Equal(t, shutter.MovingOut, n.machine.State())
}

func TestDispatchOverrideToggle(t *testing.T) {
	n := newNode(t, config.NewStore(config.NewMemoryBackend()))
	n.open(t)

	n.send(":tupo1!")
	assert.True(t, n.machine.Override())

	n.send(":tupo0!")
	assert.False(t, n.machine.Override())
	assert.Equal(t, shutter.Open, n.machine.State())
}

func TestDispatchThresholdSurvivesReboot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.bin")

	n := newNode(t, config.NewStore(config.NewFileBackend(path)))
	n.send(":maxl500!")
	require.Equal(t, []error{nil}, n.errs)

	rebooted := newNode(t, config.NewStore(config.NewFileBackend(path)))
	assert.Equal(t, uint16(500), rebooted.machine.Threshold(config.MaxLight))
}

func TestDispatchSingleThresholdKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.bin")

	n := newNode(t, config.NewStore(config.NewFileBackend(path)))
	n.send(":maxd180!")
	require.Equal(t, []error{nil}, n.errs)

	rebooted := newNode(t, config.NewStore(config.NewFileBackend(path)))
	want := config.Thresholds{MinLight: 10, MaxLight: 4000, MinDist: 10, MaxDist: 180}
	assert.Equal(t, want, rebooted.machine.Thresholds())
}

func TestDispatchSetters(t *testing.T) {
	tests := []struct {
		frame string
		key   config.Key
		want  uint16
	}{
		{":minl12!", config.MinLight, 12},
		{":maxl4001!", config.MaxLight, 4001},
		{":mint5!", config.MinTemp, 5},
		{":maxt35!", config.MaxTemp, 35},
		{":mind7!", config.MinDist, 7},
		{":maxd180!", config.MaxDist, 180},
		{":maxdabc!", config.MaxDist, 0},
		{":mind!", config.MinDist, 0},
		{":maxd99999!", config.MaxDist, 65535},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			n := newNode(t, config.NewStore(config.NewMemoryBackend()))

			n.send(tt.frame)
			require.Equal(t, []error{nil}, n.errs)
			assert.Equal(t, tt.want, n.machine.Threshold(tt.key))
		})
	}
}

func TestDispatchProtocolErrors(t *testing.T) {
	t.Run("unknown opcode is ignored", func(t *testing.T) {
		n := newNode(t, config.NewStore(config.NewMemoryBackend()))
		before := n.machine.Thresholds()

		n.send(":nope42!")

		require.Len(t, n.errs, 1)
		assert.ErrorIs(t, n.errs[0], ErrUnknownOpcode)
		assert.Equal(t, before, n.machine.Thresholds())
		assert.Empty(t, drain(n.queue))
	})

	t.Run("short frame is rejected", func(t *testing.T) {
		n := newNode(t, config.NewStore(config.NewMemoryBackend()))

		n.send(":sh!")

		require.Len(t, n.errs, 1)
		assert.ErrorIs(t, n.errs[0], ErrShortFrame)
	})

	t.Run("overflowed frame is rejected", func(t *testing.T) {
		n := newNode(t, config.NewStore(config.NewMemoryBackend()))
		before := n.machine.Thresholds()

		n.send(":maxl" + string(bytes.Repeat([]byte{'1'}, serial.MaxFrameLength)) + "!")

		require.Len(t, n.errs, 1)
		assert.ErrorIs(t, n.errs[0], ErrFrameOverflow)
		assert.Equal(t, before, n.machine.Thresholds())
	})

	t.Run("handshake with full queue reports queue full", func(t *testing.T) {
		n := newNode(t, config.NewStore(config.NewMemoryBackend()))
		require.NoError(t, n.queue.Enqueue(bytes.Repeat([]byte{'x'}, n.queue.Free())))

		n.send(":HAND!")

		require.Len(t, n.errs, 1)
		assert.ErrorIs(t, n.errs[0], serial.ErrQueueFull)
	})
}

func TestParseArgument(t *testing.T) {
	tests := map[string]uint16{
		"":       0,
		"0":      0,
		"1":      1,
		"500":    500,
		"65535":  65535,
		"65536":  65535,
		"12ab":   12,
		"ab12":   0,
		"-5":     0,
		" 7":     0,
		"007":    7,
		"999999": 65535,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseArgument([]byte(in)), "%q", in)
	}
}
