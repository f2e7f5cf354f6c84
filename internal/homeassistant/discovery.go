// Package homeassistant builds MQTT discovery descriptors so Home Assistant
// registers each bridged light automatically.
package homeassistant

import (
	"encoding/json"

	"github.com/dlashua/govee2mqtt/internal/device"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/mqtt"
)

// Manufacturer is reported in every device block.
const Manufacturer = "Govee"

// LightConfig is the JSON-schema light descriptor published to
// <discovery>/light/govee_<id>/config.
type LightConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	Schema              string     `json:"schema"`
	CommandTopic        string     `json:"command_topic"`
	StateTopic          string     `json:"state_topic"`
	JSONAttributesTopic string     `json:"json_attributes_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	Brightness          bool       `json:"brightness"`
	BrightnessScale     int        `json:"brightness_scale"`
	RGB                 bool       `json:"rgb"`
	Device              DeviceInfo `json:"device"`
}

// DeviceInfo groups entities under one device in Home Assistant.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw_version"`
}

// NewLightConfig describes one device. brightnessScale must match the
// scale the bridge publishes brightness in.
func NewLightConfig(d device.Device, topics mqtt.Topics, brightnessScale int, version string) LightConfig {
	objectID := mqtt.ObjectID(d.ID)
	return LightConfig{
		Name:                d.Name,
		UniqueID:            "govee_light_" + objectID,
		Schema:              "json",
		CommandTopic:        topics.Set(d.ID),
		StateTopic:          topics.State(d.ID),
		JSONAttributesTopic: topics.State(d.ID),
		AvailabilityTopic:   topics.Status(),
		Brightness:          true,
		BrightnessScale:     brightnessScale,
		RGB:                 true,
		Device: DeviceInfo{
			Identifiers:  []string{"govee_" + objectID},
			Manufacturer: Manufacturer,
			Model:        d.Model,
			Name:         d.Name,
			SWVersion:    "govee2mqtt " + version,
		},
	}
}

// Payload encodes the descriptor.
func (c LightConfig) Payload() ([]byte, error) {
	return json.Marshal(c)
}
