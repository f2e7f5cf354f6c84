package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dlashua/govee2mqtt/internal/device"
	"github.com/dlashua/govee2mqtt/internal/homeassistant"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/mqtt"
)

// publishChanges publishes each changed attribute on its own topic and
// then the device's full attribute map once.
func (b *Bridge) publishChanges(d *device.Device, changes []device.Change) {
	now := time.Now()
	for _, c := range changes {
		b.logInfo("UPDATE",
			"name", d.Name,
			"id", d.ID,
			"attribute", c.Attribute,
			"value", c.Value)

		b.metrics.attributeChanges.WithLabelValues(c.Attribute).Inc()
		if b.telemetry != nil {
			b.telemetry.WriteAttributeChange(d.ID, d.Name, c.Attribute, c.Value, now)
		}
		b.publishJSON(b.topics.Attribute(d.ID, c.Attribute), c.Value)
	}

	current, err := b.registry.Get(d.ID)
	if err != nil {
		b.logError("reading device for aggregate state", err, "id", d.ID)
		return
	}
	b.publishJSON(b.topics.State(d.ID), current.Attributes)
}

// publishDiscovery announces one device to Home Assistant. It does nothing
// when no discovery prefix is configured.
func (b *Bridge) publishDiscovery(d device.Device) {
	if !b.topics.HasDiscovery() {
		return
	}
	cfg := homeassistant.NewLightConfig(d, b.topics, b.cfg.Bridge.BrightnessScale, b.version)
	payload, err := cfg.Payload()
	if err != nil {
		b.logError("encoding discovery config", err, "id", d.ID)
		return
	}
	if err := b.publish(b.topics.Discovery(d.ID), payload); err != nil {
		return
	}
	b.logInfo("published discovery config", "name", d.Name, "id", d.ID)
}

// publishJSON encodes v and publishes it retained.
func (b *Bridge) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("encoding payload", err, "topic", topic)
		return
	}
	_ = b.publish(topic, payload)
}

// publish sends one retained message at the configured QoS. Failures are
// logged and counted.
func (b *Bridge) publish(topic string, payload []byte) error {
	client := b.mqttClient()
	if client == nil {
		return mqtt.ErrNotConnected
	}
	if err := client.Publish(topic, payload, b.qos, true); err != nil {
		b.metrics.publishErrors.Inc()
		b.logError("publish failed", fmt.Errorf("%s: %w", topic, err))
		return err
	}
	return nil
}
