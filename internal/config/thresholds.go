package config

import "fmt"

// Key addresses one persisted threshold.
type Key uint8

const (
	MinTemp Key = iota
	MaxTemp
	MinLight
	MaxLight
	MinDist
	MaxDist
)

// Keys lists every persisted key in storage order.
var Keys = []Key{MinTemp, MaxTemp, MinLight, MaxLight, MinDist, MaxDist}

var keyNames = map[Key]string{
	MinTemp:  "min_temp",
	MaxTemp:  "max_temp",
	MinLight: "min_light",
	MaxLight: "max_light",
	MinDist:  "min_dist",
	MaxDist:  "max_dist",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}

	return fmt.Sprintf("key(%d)", uint8(k))
}

// Valid reports whether k is one of the six persisted keys.
func (k Key) Valid() bool {
	return k <= MaxDist
}

// Address is the byte offset of the key's 16-bit word in the persistent image.
func (k Key) Address() int64 {
	return int64(k) * 2
}

// Pair returns the min/max keys of the range k belongs to.
func (k Key) Pair() (min Key, max Key) {
	base := k &^ 1
	return base, base + 1
}

// Thresholds is the working copy of all six persisted values.
type Thresholds struct {
	MinTemp  uint16 `yaml:"min_temp" default:"15"`
	MaxTemp  uint16 `yaml:"max_temp" default:"30"`
	MinLight uint16 `yaml:"min_light" default:"10"`
	MaxLight uint16 `yaml:"max_light" default:"4000"`
	MinDist  uint16 `yaml:"min_dist" default:"10"`
	MaxDist  uint16 `yaml:"max_dist" default:"200"`
}

func (t *Thresholds) field(k Key) *uint16 {
	switch k {
	case MinTemp:
		return &t.MinTemp
	case MaxTemp:
		return &t.MaxTemp
	case MinLight:
		return &t.MinLight
	case MaxLight:
		return &t.MaxLight
	case MinDist:
		return &t.MinDist
	case MaxDist:
		return &t.MaxDist
	}

	return nil
}

// Get returns the value stored under k, zero for an unknown key.
func (t Thresholds) Get(k Key) uint16 {
	if f := t.field(k); f != nil {
		return *f
	}

	return 0
}

// Set updates the value stored under k. Unknown keys are ignored.
func (t *Thresholds) Set(k Key, value uint16) {
	if f := t.field(k); f != nil {
		*f = value
	}
}

// Inverted returns the min keys whose pair is configured with min > max.
func (t Thresholds) Inverted() []Key {
	var inverted []Key
	for _, k := range []Key{MinTemp, MinLight, MinDist} {
		_, max := k.Pair()
		if t.Get(k) > t.Get(max) {
			inverted = append(inverted, k)
		}
	}

	return inverted
}
