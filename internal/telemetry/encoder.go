package telemetry

import (
	"math"
	"strconv"

	"github.com/jkaflik/shutternode/internal/config"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
)

// MaxLineLength bounds an encoded status line, newline included.
const MaxLineLength = 100

// Unavailable replaces the distance or reading of a sensor that has no
// valid value.
const Unavailable = "NaN"

var ErrLineTooLong = errors.New("telemetry: line exceeds capacity")

// Status is everything a status line reports.
type Status struct {
	DeviceName string
	Variant    shutter.Variant
	Distance   float64
	Reading    float64
	Thresholds config.Thresholds
	Override   bool
	State      shutter.State
}

// Encode renders s as
//
//	DN<name>&US<dist>&DT<code>&<label><reading>&D0<min>&D1<max>&S0<min>&S1<max>&OS<0|1>&ST<0-3>\n
//
// and fails with ErrLineTooLong instead of truncating.
func Encode(s Status) ([]byte, error) {
	var l fixedLine

	l.field("DN", s.DeviceName)
	l.floatField("US", s.Distance)
	l.uintField("DT", uint64(s.Variant.Code))
	l.floatField(s.Variant.Label, s.Reading)
	l.uintField("D0", uint64(s.Thresholds.MinDist))
	l.uintField("D1", uint64(s.Thresholds.MaxDist))
	l.uintField("S0", uint64(s.Thresholds.Get(s.Variant.MinKey)))
	l.uintField("S1", uint64(s.Thresholds.Get(s.Variant.MaxKey)))
	l.uintField("OS", boolToUint(s.Override))
	l.uintField("ST", uint64(s.State))
	l.writeString("\n")

	if l.err != nil {
		return nil, errors.Wrapf(l.err, "%s", s.DeviceName)
	}

	return append([]byte(nil), l.bytes()...), nil
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

type fixedLine struct {
	buf    [MaxLineLength]byte
	n      int
	fields int
	err    error
}

func (l *fixedLine) bytes() []byte {
	return l.buf[:l.n]
}

func (l *fixedLine) write(p []byte) {
	if l.err != nil {
		return
	}
	if l.n+len(p) > len(l.buf) {
		l.err = ErrLineTooLong
		return
	}
	l.n += copy(l.buf[l.n:], p)
}

func (l *fixedLine) writeString(s string) {
	if l.err != nil {
		return
	}
	if l.n+len(s) > len(l.buf) {
		l.err = ErrLineTooLong
		return
	}
	l.n += copy(l.buf[l.n:], s)
}

func (l *fixedLine) tag(tag string) {
	if l.fields > 0 {
		l.writeString("&")
	}
	l.fields++
	l.writeString(tag)
}

func (l *fixedLine) field(tag, value string) {
	l.tag(tag)
	l.writeString(value)
}

func (l *fixedLine) uintField(tag string, v uint64) {
	var scratch [20]byte
	l.tag(tag)
	l.write(strconv.AppendUint(scratch[:0], v, 10))
}

// floatField writes v with two decimals. A value that is not finite is an
// unavailable reading and is written as the Unavailable marker.
func (l *fixedLine) floatField(tag string, v float64) {
	var scratch [32]byte
	l.tag(tag)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		l.writeString(Unavailable)
		return
	}
	l.write(strconv.AppendFloat(scratch[:0], v, 'f', 2, 64))
}
