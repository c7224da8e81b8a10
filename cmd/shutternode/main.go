package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shutternode/internal/command"
	"github.com/jkaflik/shutternode/internal/mqtt"
	"github.com/jkaflik/shutternode/internal/scheduler"
	"github.com/jkaflik/shutternode/internal/sensor"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/jkaflik/shutternode/internal/telemetry"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	loadConfigFromYamlFile(*configPath)

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	name := Cfg.Device.Name
	variant := variantFromConfig()
	logrus.Infof("%s: %s device", name, variant.Name)

	store := storeFromConfig()
	snapshot := sensor.NewSnapshot(variant)
	machine := shutter.NewMachine(name, actuatorFromConfig(ctx), snapshot, store, store.Load(Cfg.Defaults))

	sched := scheduler.New()
	queue := serial.NewQueue(Cfg.Serial.TxBufferSize)
	serialDispatcher := command.NewDispatcher(name, machine, queue)
	// assigned before sched.Run, frames are only dispatched from task context
	var mqttDispatcher *command.Dispatcher

	// frames complete on transport goroutines, their effects run in task context;
	// replies go back over the transport the frame came from
	onFrame := func(dispatch func(serial.Frame) error) serial.FrameHandler {
		return func(f serial.Frame) {
			posted := sched.Post(func() {
				if err := dispatch(f); err != nil {
					logrus.Debugf("%s: frame %q ignored: %s", name, f.Data, err)
				}
			})
			if !posted {
				logrus.Warnf("%s: frame %q dropped, dispatcher busy", name, f.Data)
			}
		}
	}

	sinks := []telemetry.Sink{telemetry.SinkFunc(queue.Enqueue)}

	if Cfg.Serial.Address != "" {
		port, err := serial.OpenPort(serialPortConfig())
		if err != nil {
			logrus.Fatal(err)
		}
		link := serial.NewLink(name, port, serial.NewFramer(onFrame(serialDispatcher.Dispatch)), queue)
		go func() {
			if err := link.Run(ctx); err != nil {
				logrus.Error(err)
			}
		}()
		logrus.Infof("%s: serial link on %s", name, Cfg.Serial.Address)
	} else {
		logrus.Warnf("%s: no serial address, outbound bytes are discarded", name)
		go discardOutbound(ctx, queue)
	}

	if Cfg.MQTT.Broker != "" {
		bridge, client := connectMQTT(ctx, serial.NewFramer(onFrame(func(f serial.Frame) error {
			return mqttDispatcher.Dispatch(f)
		})), snapshot, variant)
		mqttDispatcher = command.NewDispatcher(name, machine, command.SenderFunc(bridge.PublishTelemetry))
		machine.OnUpdate(bridge.OnShutterUpdateHandler())
		sinks = append(sinks, telemetry.SinkFunc(bridge.PublishTelemetry))
		defer client.Disconnect(250)
	} else if Cfg.Sensors.Kind == "mqtt" {
		logrus.Fatalf("%s: mqtt sensors need mqtt.broker", name)
	}

	switch Cfg.Sensors.Kind {
	case "mqtt":
	case "modbus":
		poller, err := sensor.NewModbusPoller(name, modbusConfig(), snapshot)
		if err != nil {
			logrus.Fatal(err)
		}
		defer poller.Close()
		mustRegister(sched, "sensors", func(context.Context) { poller.Refresh() }, 0, Cfg.Schedule.Sensors)
	case "static":
		snapshot.PublishDistance(Cfg.Sensors.Static.Distance)
		snapshot.PublishReading(Cfg.Sensors.Static.Reading)
	default:
		logrus.Fatalf("%s is not supported sensors kind", Cfg.Sensors.Kind)
	}

	emitter := telemetry.NewEmitter(name, machine, snapshot, sinks...)

	mustRegister(sched, "telemetry", func(context.Context) { emitter.Emit() }, 0, Cfg.Schedule.Telemetry)
	mustRegister(sched, "motion", machine.Step, 0, Cfg.Schedule.Motion)
	mustRegister(sched, "decision", func(context.Context) { machine.Decide() }, 0, Cfg.Schedule.Decision)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		oscall := <-c
		logrus.Infof("system call: %+v", oscall)
		cancel()
	}()

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		logrus.Error(err)
	}

	if store.Faulted() {
		logrus.Warnf("%s: some thresholds were not persisted this session", name)
	}

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())
	time.Sleep(cleanupTime)
}

func mustRegister(s *scheduler.Scheduler, name string, fn scheduler.Task, initialDelay, interval time.Duration) {
	if err := s.RegisterPeriodic(name, fn, initialDelay, interval); err != nil {
		logrus.Fatal(err)
	}
}

func connectMQTT(ctx context.Context, framer *serial.Framer, snapshot *sensor.Snapshot, variant shutter.Variant) (*mqtt.Bridge, paho.Client) {
	var (
		bridge *mqtt.Bridge
		source *sensor.MQTTSource
	)

	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		subscribe(ctx, m, bridge, source, variant)
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
		if source != nil {
			snapshot.Invalidate()
		}
	}

	m := paho.NewClient(cfg)
	bridge = mqtt.NewBridge(m, Cfg.MQTT.TopicPrefix, Cfg.Device.Name, framer)
	if Cfg.Sensors.Kind == "mqtt" {
		source = sensor.NewMQTTSource(m, Cfg.MQTT.TopicPrefix, Cfg.Device.Name, snapshot)
	}

	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	return bridge, m
}

func subscribe(ctx context.Context, m paho.Client, bridge *mqtt.Bridge, source *sensor.MQTTSource, variant shutter.Variant) {
	if Cfg.HASS.Enabled {
		entity := mqtt.NewHACoverFromBridge(bridge, variant)
		if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, entity); err != nil {
			logrus.Error(err)
		}
	}

	if err := bridge.Subscribe(ctx); err != nil {
		logrus.Error(err)
	}

	if source != nil {
		if err := source.Subscribe(ctx); err != nil {
			logrus.Error(err)
		}
	}
}

// discardOutbound keeps the queue moving when no serial port is attached.
func discardOutbound(ctx context.Context, queue *serial.Queue) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-queue.Ready():
			for {
				if _, ok := queue.DrainOne(); !ok {
					break
				}
			}
		}
	}
}
