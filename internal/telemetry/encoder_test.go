package telemetry

import (
	"math"
	"strings"
	"testing"

	"github.com/jkaflik/shutternode/internal/config"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLightDevice(t *testing.T) {
	line, err := Encode(Status{
		DeviceName: "Light Unit 1",
		Variant:    shutter.LightVariant,
		Distance:   42,
		Reading:    13.37,
		Thresholds: config.Thresholds{MinLight: 10, MaxLight: 4000, MinDist: 10, MaxDist: 200, MinTemp: 1, MaxTemp: 2},
		Override:   false,
		State:      shutter.Open,
	})

	require.NoError(t, err)
	assert.Equal(t, "DNLight Unit 1&US42.00&DT1&LS13.37&D010&D1200&S010&S14000&OS0&ST1\n", string(line))
}

func TestEncodeTemperatureDevice(t *testing.T) {
	line, err := Encode(Status{
		DeviceName: "Temp Unit 2",
		Variant:    shutter.TemperatureVariant,
		Distance:   7.5,
		Reading:    21.456,
		Thresholds: config.Thresholds{MinTemp: 15, MaxTemp: 30, MinLight: 99, MaxLight: 99, MinDist: 5, MaxDist: 150},
		Override:   true,
		State:      shutter.MovingIn,
	})

	require.NoError(t, err)
	assert.Equal(t, "DNTemp Unit 2&US7.50&DT0&TS21.46&D05&D1150&S015&S130&OS1&ST2\n", string(line))
}

func TestEncodeUnavailableReading(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		reading  float64
		want     string
	}{
		{"no distance", math.NaN(), 120, "DNx&USNaN&DT1&LS120.00&"},
		{"no reading", 12, math.NaN(), "DNx&US12.00&DT1&LSNaN&"},
		{"infinite reading", 12, math.Inf(1), "DNx&US12.00&DT1&LSNaN&"},
		{"infinite distance", math.Inf(-1), 120, "DNx&USNaN&DT1&LS120.00&"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Encode(Status{DeviceName: "x", Variant: shutter.LightVariant, Distance: tt.distance, Reading: tt.reading})

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(line), tt.want), string(line))
		})
	}
}

func TestEncodeTooLong(t *testing.T) {
	_, err := Encode(Status{
		DeviceName: strings.Repeat("n", MaxLineLength),
		Variant:    shutter.LightVariant,
	})
	assert.ErrorIs(t, err, ErrLineTooLong)

	_, err = Encode(Status{DeviceName: "x", Variant: shutter.LightVariant, Reading: 1e90})
	assert.ErrorIs(t, err, ErrLineTooLong)
}

type fakeState struct {
	state shutter.State
}

func (s fakeState) State() shutter.State { return s.state }
func (s fakeState) Override() bool       { return false }
func (s fakeState) Thresholds() config.Thresholds {
	return config.Thresholds{MinLight: 10, MaxLight: 4000, MinDist: 10, MaxDist: 200}
}

type fakeSensor struct{}

func (fakeSensor) Distance() float64        { return 42 }
func (fakeSensor) CurrentReading() float64  { return 13.37 }
func (fakeSensor) UnitLabel() string        { return "LS" }
func (fakeSensor) Variant() shutter.Variant { return shutter.LightVariant }

func TestEmitter(t *testing.T) {
	const want = "DNLight Unit 1&US42.00&DT1&LS13.37&D010&D1200&S010&S14000&OS0&ST1\n"

	t.Run("line reaches every sink", func(t *testing.T) {
		queue := serial.NewQueue(serial.TxBufferSize)
		var published [][]byte

		e := NewEmitter("Light Unit 1", fakeState{shutter.Open}, fakeSensor{},
			SinkFunc(queue.Enqueue),
			SinkFunc(func(line []byte) error {
				published = append(published, line)
				return nil
			}),
		)
		e.Emit()

		assert.Equal(t, len(want), queue.Len())
		require.Len(t, published, 1)
		assert.Equal(t, want, string(published[0]))
	})

	t.Run("full queue skips the cycle without corrupting it", func(t *testing.T) {
		queue := serial.NewQueue(serial.TxBufferSize)
		require.NoError(t, queue.Enqueue([]byte(strings.Repeat("x", 100))))

		e := NewEmitter("Light Unit 1", fakeState{shutter.Open}, fakeSensor{}, SinkFunc(queue.Enqueue))
		e.Emit()

		assert.Equal(t, 100, queue.Len())
	})

	t.Run("failing sink does not stop the others", func(t *testing.T) {
		var calls int
		e := NewEmitter("Light Unit 1", fakeState{shutter.Open}, fakeSensor{},
			SinkFunc(func([]byte) error { return errors.New("broker down") }),
			SinkFunc(func([]byte) error { calls++; return nil }),
		)
		e.Emit()

		assert.Equal(t, 1, calls)
	})
}
