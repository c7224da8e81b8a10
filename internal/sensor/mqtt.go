package sensor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const subscribeTimeout = 5 * time.Second

// MQTTSource refreshes a snapshot from retained sensor topics:
// <prefix>/<name>/sensor/distance and <prefix>/<name>/sensor/<variant>.
type MQTTSource struct {
	mqtt     paho.Client
	name     string
	snapshot *Snapshot

	DistanceTopic string
	ReadingTopic  string
}

func NewMQTTSource(client paho.Client, prefix, name string, snapshot *Snapshot) *MQTTSource {
	return &MQTTSource{
		mqtt:          client,
		name:          name,
		snapshot:      snapshot,
		DistanceTopic: fmt.Sprintf("%s/%s/sensor/distance", prefix, name),
		ReadingTopic:  fmt.Sprintf("%s/%s/sensor/%s", prefix, name, snapshot.Variant().Name),
	}
}

func (s *MQTTSource) Subscribe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if token := s.mqtt.Unsubscribe(s.DistanceTopic, s.ReadingTopic); token.WaitTimeout(subscribeTimeout) && token.Error() != nil {
			logrus.Errorf("%s: MQTT sensor topics unsubscribe failed: %s", s.name, token.Error())
		}
	}()

	if token := s.mqtt.Subscribe(s.DistanceTopic, 0, s.handler(s.snapshot.PublishDistance)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT distance topic subscription failed", s.name)
	}
	if token := s.mqtt.Subscribe(s.ReadingTopic, 0, s.handler(s.snapshot.PublishReading)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT %s topic subscription failed", s.name, s.snapshot.Variant().Name)
	}
	logrus.Infof("%s: MQTT sensor topics subscribed", s.name)

	return nil
}

func (s *MQTTSource) handler(publish func(float64)) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		publish(ParseReading(msg.Payload()))
	}
}

// ParseReading parses a decimal payload; anything unparsable is unavailable.
func ParseReading(payload []byte) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		logrus.Debugf("unparsable sensor payload %q: %s", payload, err)
		return math.NaN()
	}

	return v
}
