package sensor

import (
	"context"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	paho.Token
}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type fakeClient struct {
	paho.Client
	handlers map[string]paho.MessageHandler
}

func (c *fakeClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	c.handlers[topic] = h
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(...string) paho.Token {
	return doneToken{}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.handlers[topic](c, fakeMessage{topic: topic, payload: []byte(payload)})
}

func TestMQTTSource(t *testing.T) {
	client := &fakeClient{handlers: map[string]paho.MessageHandler{}}
	snapshot := NewSnapshot(shutter.TemperatureVariant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := NewMQTTSource(client, "shutternode", "unit1", snapshot)
	require.NoError(t, source.Subscribe(ctx))

	assert.Equal(t, "shutternode/unit1/sensor/distance", source.DistanceTopic)
	assert.Equal(t, "shutternode/unit1/sensor/temperature", source.ReadingTopic)

	client.deliver(source.DistanceTopic, "120.5")
	client.deliver(source.ReadingTopic, "21.25")
	assert.Equal(t, 120.5, snapshot.Distance())
	assert.Equal(t, 21.25, snapshot.CurrentReading())

	client.deliver(source.ReadingTopic, "offline")
	assert.False(t, shutter.ValidReading(snapshot.CurrentReading()))
}
