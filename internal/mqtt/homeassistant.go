package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shutternode/internal/command"
	"github.com/jkaflik/shutternode/internal/serial"
	"github.com/jkaflik/shutternode/internal/shutter"
	"github.com/pkg/errors"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	UniqueID    string `json:"uniq_id,omitempty"`
	Name        string `json:"name,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic   string `json:"stat_t"`
	CommandTopic string `json:"cmd_t"`
	PayloadOpen  string `json:"pl_open"`
	PayloadClose string `json:"pl_cls"`
	StateOpen    string `json:"stat_open"`
	StateClosed  string `json:"stat_clsd"`
	StateOpening string `json:"stat_opening"`
	StateClosing string `json:"stat_closing"`
}

func frame(opcode string) string {
	return string([]byte{serial.StartDelimiter}) + opcode + string([]byte{serial.EndDelimiter})
}

// NewHACoverFromBridge describes the node as a cover whose open and close
// payloads are the shou and shin frames.
func NewHACoverFromBridge(bridge *Bridge, variant shutter.Variant) haCover {
	return haCover{
		haEntity: haEntity{
			UniqueID:    bridge.name,
			Name:        bridge.name,
			DeviceClass: "shutter",

			Device: haDevice{
				Identifiers: []string{"shutternode", bridge.name},
				Model:       fmt.Sprintf("shutter node (%s)", variant.Name),
				Name:        bridge.name,
				SWVersion:   "shutternode",
			},
		},
		StateTopic:   bridge.StateTopic,
		CommandTopic: bridge.CommandTopic,
		PayloadOpen:  frame(command.ShutterOutCmd),
		PayloadClose: frame(command.ShutterInCmd),
		StateOpen:    shutter.Open.String(),
		StateClosed:  shutter.Closed.String(),
		StateOpening: shutter.MovingOut.String(),
		StateClosing: shutter.MovingIn.String(),
	}
}

func PublishHAAutoDiscovery(client paho.Client, homeAssistantDiscoveryTopicPrefix string, haCover haCover) error {
	topic := fmt.Sprintf("%s/cover/shutternode/%s/config", homeAssistantDiscoveryTopicPrefix, haCover.UniqueID)

	payload, err := json.Marshal(haCover)
	if err != nil {
		return err
	}

	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: HA discovery publish failed", haCover.Name)
	}

	return nil
}
