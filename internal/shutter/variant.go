package shutter

import (
	"github.com/jkaflik/shutternode/internal/config"
	"github.com/pkg/errors"
)

// Variant describes which primary sensor a device is built with.
type Variant struct {
	Name   string
	Code   int
	Label  string
	MinKey config.Key
	MaxKey config.Key
}

var (
	TemperatureVariant = Variant{Name: "temperature", Code: 0, Label: "TS", MinKey: config.MinTemp, MaxKey: config.MaxTemp}
	LightVariant       = Variant{Name: "light", Code: 1, Label: "LS", MinKey: config.MinLight, MaxKey: config.MaxLight}
)

func ParseVariant(name string) (Variant, error) {
	switch name {
	case TemperatureVariant.Name:
		return TemperatureVariant, nil
	case LightVariant.Name:
		return LightVariant, nil
	}

	return Variant{}, errors.Errorf("%s is not supported device variant", name)
}
