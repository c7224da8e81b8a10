package mqtt

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const publishTimeout = time.Second

// Receiver accepts raw inbound bytes, as if received on the serial line.
type Receiver interface {
	Feed(p []byte)
}

// Bridge mirrors the node's serial channel on MQTT: telemetry lines and the
// shutter state are published, command topic payloads are fed to the framer.
type Bridge struct {
	mqtt  mqtt.Client
	name  string
	input Receiver

	TelemetryTopic string
	StateTopic     string
	CommandTopic   string
}

func NewBridge(mqtt mqtt.Client, prefix, name string, input Receiver) *Bridge {
	return &Bridge{
		mqtt:           mqtt,
		name:           name,
		input:          input,
		TelemetryTopic: fmt.Sprintf("%s/%s/telemetry", prefix, name),
		StateTopic:     fmt.Sprintf("%s/%s/state", prefix, name),
		CommandTopic:   fmt.Sprintf("%s/%s/set", prefix, name),
	}
}

func (b *Bridge) Name() string {
	return b.name
}

// PublishTelemetry publishes one status line, newline stripped.
func (b *Bridge) PublishTelemetry(line []byte) error {
	payload := line
	if n := len(payload); n > 0 && payload[n-1] == '\n' {
		payload = payload[:n-1]
	}

	return b.publish(b.TelemetryTopic, false, payload, "telemetry")
}

func (b *Bridge) Subscribe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.CommandTopic); token.WaitTimeout(publishTimeout) && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.name, token.Error())
		}
	}()

	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler()); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.name)
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.name)

	return nil
}

// OnShutterUpdateHandler publishes every state change as retained state.
func (b *Bridge) OnShutterUpdateHandler() shutter.UpdateHandler {
	return func(state shutter.State) {
		if err := b.publish(b.StateTopic, true, []byte(state.String()), "state"); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onCommandHandler() mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		logrus.Debugf("%s: MQTT command %q", b.name, msg.Payload())
		b.input.Feed(msg.Payload())
	}
}

func (b *Bridge) publish(topic string, retained bool, payload []byte, what string) error {
	token := b.mqtt.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("%s: MQTT %s publish timed out", b.name, what)
	}
	if token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT %s publish failed", b.name, what)
	}

	return nil
}
