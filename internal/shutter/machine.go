package shutter

import (
	"context"

	"github.com/jkaflik/shutternode/internal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ThresholdStore persists threshold writes.
type ThresholdStore interface {
	Set(key config.Key, value uint16) error
}

// Machine is the shutter controller. Its methods are not safe for concurrent
// use and are meant to be called from the scheduler's task context only.
type Machine struct {
	name     string
	actuator Actuator
	sensor   Sensor
	store    ThresholdStore

	thresholds config.Thresholds
	override   bool
	state      State

	updateHandler UpdateHandler
}

// NewMachine starts in Closed with thresholds as loaded from the store.
func NewMachine(name string, actuator Actuator, sensor Sensor, store ThresholdStore, thresholds config.Thresholds) *Machine {
	return &Machine{
		name:       name,
		actuator:   actuator,
		sensor:     sensor,
		store:      store,
		thresholds: thresholds,
		state:      Closed,
	}
}

func (m *Machine) Name() string {
	return m.name
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Override() bool {
	return m.override
}

func (m *Machine) Thresholds() config.Thresholds {
	return m.thresholds
}

func (m *Machine) Threshold(key config.Key) uint16 {
	return m.thresholds.Get(key)
}

func (m *Machine) OnUpdate(h UpdateHandler) {
	m.updateHandler = h
}

// SetOverride suspends (true) or resumes (false) threshold-driven transitions.
func (m *Machine) SetOverride(override bool) {
	if m.override != override {
		logrus.Infof("%s: override %t", m.name, override)
	}
	m.override = override
}

// Force sets the state unconditionally, regardless of override.
func (m *Machine) Force(state State) error {
	if !state.Valid() {
		return errors.Errorf("%s: %d is not a shutter state", m.name, state)
	}

	logrus.Infof("%s: force %s", m.name, state)
	m.transition(state)

	return nil
}

// SetThreshold updates the working copy and writes it through to the store.
// The working copy is updated even when persisting fails.
func (m *Machine) SetThreshold(key config.Key, value uint16) error {
	if !key.Valid() {
		return errors.Errorf("%s: unknown threshold key %d", m.name, key)
	}

	m.thresholds.Set(key, value)
	logrus.Infof("%s: %s set to %d", m.name, key, value)

	min, max := key.Pair()
	if m.thresholds.Get(min) > m.thresholds.Get(max) {
		logrus.Warnf("%s: %s=%d is above %s=%d", m.name, min, m.thresholds.Get(min), max, m.thresholds.Get(max))
	}

	if err := m.store.Set(key, value); err != nil {
		logrus.Warnf("%s: %s kept in memory only: %s", m.name, key, err)
		return err
	}

	return nil
}

// Decide runs the threshold check: a resting shutter starts moving when the
// active reading crosses into or out of its [min, max] range. Bounds are
// inclusive. Nothing happens while override is set or the reading is invalid.
func (m *Machine) Decide() {
	if m.override {
		return
	}

	reading := m.sensor.CurrentReading()
	if !ValidReading(reading) {
		logrus.Debugf("%s: %s reading unavailable, hold %s", m.name, m.sensor.UnitLabel(), m.state)
		return
	}

	v := m.sensor.Variant()
	within := reading >= float64(m.thresholds.Get(v.MinKey)) && reading <= float64(m.thresholds.Get(v.MaxKey))

	switch {
	case m.state == Closed && within:
		m.transition(MovingOut)
	case m.state == Open && !within:
		m.transition(MovingIn)
	}
}

// Step advances a moving shutter by one pulse or finishes the motion once
// the distance reaches its threshold. Resting states refresh the indicator.
func (m *Machine) Step(ctx context.Context) {
	switch m.state {
	case Open, Closed:
		if err := m.actuator.Rest(ctx, m.state); err != nil {
			logrus.Errorf("%s: resting indicator error: %s", m.name, err)
		}
		return
	}

	distance := m.sensor.Distance()
	if !ValidReading(distance) {
		logrus.Debugf("%s: distance unavailable, hold %s", m.name, m.state)
		return
	}

	if m.state == MovingIn && distance <= float64(m.thresholds.MinDist) {
		m.transition(Closed)
		return
	}

	if m.state == MovingOut && distance >= float64(m.thresholds.MaxDist) {
		m.transition(Open)
		return
	}

	logrus.Tracef("%s: pulse %s at distance %.2f", m.name, m.state, distance)
	if err := m.actuator.Pulse(ctx, m.state); err != nil {
		logrus.Errorf("%s: pulse error: %s", m.name, err)
	}
}

func (m *Machine) transition(state State) {
	if m.state == state {
		return
	}

	logrus.Infof("%s: %s -> %s", m.name, m.state, state)
	m.state = state

	if m.updateHandler != nil {
		m.updateHandler(state)
	}
}
