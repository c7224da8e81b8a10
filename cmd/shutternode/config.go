package main

import (
	"context"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shutternode/internal/config"
	"github.com/jkaflik/shutternode/internal/sensor"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/jkaflik/shutternode/internal/shutter/driver/gpio"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type cfgDevice struct {
	Name    string `yaml:"name" default:"Light Unit 1" env:"NAME"`
	Variant string `yaml:"variant" default:"light" env:"VARIANT"`
}

type cfgSerial struct {
	Address      string        `yaml:"address" env:"ADDRESS"`
	BaudRate     int           `yaml:"baud_rate" default:"57600" env:"BAUD_RATE"`
	Timeout      time.Duration `yaml:"timeout" default:"100ms"`
	TxBufferSize int           `yaml:"tx_buffer_size" default:"128"`
}

type cfgStorage struct {
	Path string `yaml:"path" default:"thresholds.bin" env:"PATH"`
}

type cfgSchedule struct {
	Decision  time.Duration `yaml:"decision" default:"100ms"`
	Motion    time.Duration `yaml:"motion" default:"100ms"`
	Telemetry time.Duration `yaml:"telemetry" default:"1s"`
	Sensors   time.Duration `yaml:"sensors" default:"1s"`
}

type cfgWiredPin struct {
	Pin          uint8 `yaml:"pin"`
	NormalClosed bool  `yaml:"normal_closed"`
}

type cfgMcp23017 struct {
	Bus          uint8 `yaml:"bus" default:"1"`
	DeviceNumber uint8 `yaml:"device_number" default:"0"`
}

type cfgIndicator struct {
	Kind       string        `yaml:"kind" default:"dumb" env:"KIND"`
	PulseWidth time.Duration `yaml:"pulse_width" default:"50ms"`

	Mcp23017 cfgMcp23017 `yaml:"mcp23017"`

	Red      cfgWiredPin `yaml:"red"`
	Yellow   cfgWiredPin `yaml:"yellow"`
	Green    cfgWiredPin `yaml:"green"`
	MotorIn  cfgWiredPin `yaml:"motor_in"`
	MotorOut cfgWiredPin `yaml:"motor_out"`
}

type cfgStaticSensors struct {
	Distance float64 `yaml:"distance"`
	Reading  float64 `yaml:"reading"`
}

type cfgModbusSensors struct {
	Endpoint         string        `yaml:"endpoint"`
	RTU              bool          `yaml:"rtu"`
	BaudRate         int           `yaml:"baud_rate" default:"9600"`
	UnitID           uint8         `yaml:"unit_id" default:"1"`
	Timeout          time.Duration `yaml:"timeout" default:"500ms"`
	DistanceRegister uint16        `yaml:"distance_register" default:"0"`
	ReadingRegister  uint16        `yaml:"reading_register" default:"1"`
	Scale            float64       `yaml:"scale" default:"1"`
}

type cfgSensors struct {
	Kind   string           `yaml:"kind" default:"mqtt" env:"KIND"`
	Static cfgStaticSensors `yaml:"static"`
	Modbus cfgModbusSensors `yaml:"modbus"`
}

type cfgMQTT struct {
	ClientID    string `yaml:"client_id" default:"shutternode" env:"CLIENT_ID"`
	Broker      string `yaml:"broker" env:"BROKER"`
	Username    string `yaml:"username" env:"USERNAME"`
	Password    string `yaml:"password" env:"PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix" default:"shutternode" env:"TOPIC_PREFIX"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	Device    cfgDevice         `yaml:"device" env:"DEVICE"`
	Serial    cfgSerial         `yaml:"serial" env:"SERIAL"`
	Storage   cfgStorage        `yaml:"storage" env:"STORAGE"`
	Defaults  config.Thresholds `yaml:"defaults"`
	Schedule  cfgSchedule       `yaml:"schedule"`
	Indicator cfgIndicator      `yaml:"indicator" env:"INDICATOR"`
	Sensors   cfgSensors        `yaml:"sensors" env:"SENSORS"`

	MQTT cfgMQTT `yaml:"mqtt" env:"MQTT"`
	HASS cfgHASS `yaml:"hass" env:"HASS"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "SHN",
	SkipFlags: true,
})

func loadConfigFromYamlFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		logrus.Warn(err)
		return
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		logrus.Fatal(err)
	}
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}

func variantFromConfig() shutter.Variant {
	v, err := shutter.ParseVariant(Cfg.Device.Variant)
	if err != nil {
		logrus.Fatal(err)
	}
	return v
}

func storeFromConfig() *config.Store {
	if Cfg.Storage.Path == "" {
		logrus.Warnf("%s: no storage path, thresholds will not survive a restart", Cfg.Device.Name)
		return config.NewStore(config.NewMemoryBackend())
	}

	return config.NewStore(config.NewFileBackend(Cfg.Storage.Path))
}

func serialPortConfig() serial.PortConfig {
	return serial.PortConfig{
		Address:  Cfg.Serial.Address,
		BaudRate: Cfg.Serial.BaudRate,
		Timeout:  Cfg.Serial.Timeout,
	}
}

func modbusConfig() sensor.ModbusConfig {
	m := Cfg.Sensors.Modbus
	return sensor.ModbusConfig{
		Endpoint:         m.Endpoint,
		RTU:              m.RTU,
		BaudRate:         m.BaudRate,
		UnitID:           m.UnitID,
		Timeout:          m.Timeout,
		DistanceRegister: m.DistanceRegister,
		ReadingRegister:  m.ReadingRegister,
		Scale:            m.Scale,
	}
}

func actuatorFromConfig(ctx context.Context) shutter.Actuator {
	cfg := Cfg.Indicator

	var pinFromConfig func(name string, c cfgWiredPin) *gpio.Wired
	switch cfg.Kind {
	case "mcp23017":
		device := mcp23017DeviceFromConfig(ctx, cfg.Mcp23017)
		pinFromConfig = func(name string, c cfgWiredPin) *gpio.Wired {
			p, err := gpio.NewMcp23017Pin(device, c.Pin)
			if err != nil {
				logrus.Fatalf("%s pin %d: %s", name, c.Pin, err)
			}
			return &gpio.Wired{Pin: p, NormalClosed: c.NormalClosed}
		}
	case "dumb":
		pinFromConfig = func(name string, c cfgWiredPin) *gpio.Wired {
			return &gpio.Wired{Pin: &gpio.Dumb{Name: name}, NormalClosed: c.NormalClosed}
		}
	default:
		logrus.Fatalf("%s is not supported indicator kind", cfg.Kind)
		return nil
	}

	return gpio.NewPanel(Cfg.Device.Name, gpio.PanelLines{
		Red:      pinFromConfig("red", cfg.Red),
		Yellow:   pinFromConfig("yellow", cfg.Yellow),
		Green:    pinFromConfig("green", cfg.Green),
		MotorIn:  pinFromConfig("motor_in", cfg.MotorIn),
		MotorOut: pinFromConfig("motor_out", cfg.MotorOut),
	}, cfg.PulseWidth)
}

func mcp23017DeviceFromConfig(ctx context.Context, cfg cfgMcp23017) *mcp23017.Device {
	dev, err := mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
	if err != nil {
		logrus.Fatal(err)
	}
	go func() {
		<-ctx.Done()
		if err := dev.Close(); err != nil {
			logrus.Errorf("mcp23017: close failed %s", err)
			return
		}

		logrus.Infof("mcp23017: close")
	}()
	if err := dev.Reset(); err != nil {
		logrus.Fatal(err)
	}

	return dev
}
