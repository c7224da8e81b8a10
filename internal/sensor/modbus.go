package sensor

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ModbusConfig struct {
	// Endpoint is host:port for Modbus TCP or a device path for RTU.
	Endpoint string
	RTU      bool
	BaudRate int
	UnitID   uint8
	Timeout  time.Duration

	DistanceRegister uint16
	ReadingRegister  uint16
	// Scale divides raw register values, e.g. 100 for centi-units.
	Scale float64
}

type closer interface {
	Close() error
}

// ModbusPoller refreshes a snapshot from two holding registers.
type ModbusPoller struct {
	name     string
	client   modbus.Client
	handler  closer
	snapshot *Snapshot

	distanceRegister uint16
	readingRegister  uint16
	scale            float64
}

func NewModbusPoller(name string, cfg ModbusConfig, snapshot *Snapshot) (*ModbusPoller, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("sensor: modbus endpoint required")
	}

	var (
		handler modbus.ClientHandler
		c       closer
	)
	if cfg.RTU {
		h := modbus.NewRTUClientHandler(cfg.Endpoint)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = cfg.UnitID
		h.Timeout = cfg.Timeout
		if err := h.Connect(); err != nil {
			return nil, errors.Wrapf(err, "sensor: modbus rtu %s", cfg.Endpoint)
		}
		handler, c = h, h
	} else {
		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.SlaveId = cfg.UnitID
		h.Timeout = cfg.Timeout
		if err := h.Connect(); err != nil {
			return nil, errors.Wrapf(err, "sensor: modbus tcp %s", cfg.Endpoint)
		}
		handler, c = h, h
	}

	p := newModbusPoller(name, modbus.NewClient(handler), cfg, snapshot)
	p.handler = c

	return p, nil
}

func newModbusPoller(name string, client modbus.Client, cfg ModbusConfig, snapshot *Snapshot) *ModbusPoller {
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}

	return &ModbusPoller{
		name:             name,
		client:           client,
		snapshot:         snapshot,
		distanceRegister: cfg.DistanceRegister,
		readingRegister:  cfg.ReadingRegister,
		scale:            scale,
	}
}

// Refresh reads both registers. A failed read publishes the reading as
// unavailable rather than keeping a stale value.
func (p *ModbusPoller) Refresh() {
	p.snapshot.PublishDistance(p.read(p.distanceRegister))
	p.snapshot.PublishReading(p.read(p.readingRegister))
}

func (p *ModbusPoller) read(register uint16) float64 {
	results, err := p.client.ReadHoldingRegisters(register, 1)
	if err != nil {
		logrus.Warnf("%s: modbus register %d: %s", p.name, register, err)
		return math.NaN()
	}
	if len(results) < 2 {
		logrus.Warnf("%s: modbus register %d: short response", p.name, register)
		return math.NaN()
	}

	return float64(binary.BigEndian.Uint16(results)) / p.scale
}

func (p *ModbusPoller) Close() error {
	if p.handler == nil {
		return nil
	}
	return p.handler.Close()
}
