package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dlashua/govee2mqtt/internal/audit"
	"github.com/dlashua/govee2mqtt/internal/device"
	"github.com/dlashua/govee2mqtt/internal/govee"
	"github.com/dlashua/govee2mqtt/internal/mapping"
)

// commandSource identifies MQTT-originated commands in the audit journal.
const commandSource = "mqtt"

// handleSetMessage receives <prefix>/<id>/set. The command runs on its own
// goroutine so the MQTT client's delivery goroutine is never held through
// the inter-command delay.
func (b *Bridge) handleSetMessage(topic string, payload []byte) {
	id, ok := b.topics.DeviceIDFromSetTopic(topic)
	if !ok {
		b.logWarn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	if !b.track() {
		return
	}
	go func() {
		defer b.wg.Done()
		b.HandleCommand(b.ctx, id, payload)
	}()
}

// HandleCommand translates one inbound JSON command and sends it to the
// vendor API.
//
// Unknown devices and malformed payloads are logged and dropped. The power
// command is dropped when brightness or color is also set, and commands the
// device does not list are dropped. Remaining
// commands are sent in table order with the configured delay between them;
// a failed command is logged and the rest still run. The device is then
// boosted so the result is picked up quickly.
//
// Commands for one device never interleave.
func (b *Bridge) HandleCommand(ctx context.Context, deviceID string, payload []byte) {
	d, err := b.registry.Get(deviceID)
	if err != nil {
		b.logWarn("command for unknown device dropped", "id", deviceID)
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		b.logWarn("malformed command dropped", "name", d.Name, "id", deviceID, "error", err)
		return
	}

	cmds := b.supportedOnly(d, mapping.SuppressPower(mapping.Translate(raw, b.toVendor)))

	lock := b.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	for i, cmd := range cmds {
		if i > 0 && !b.sleep(ctx, b.cfg.Govee.CommandDelay) {
			b.logDebug("command batch cancelled", "id", deviceID)
			return
		}

		b.logInfo("sending command",
			"name", d.Name,
			"id", d.ID,
			"command", cmd.Name,
			"value", cmd.Value)

		res := b.vendor.SendCommand(ctx, d.ID, d.Model, cmd.Name, cmd.Value)
		if res.Err != nil {
			b.logError("command failed", res.Err, "name", d.Name, "id", d.ID, "command", cmd.Name)
		}
		b.metrics.commands.WithLabelValues(cmd.Name, res.Outcome.String()).Inc()
		b.recordCommand(ctx, d, cmd, res)
	}

	b.boosted.Add(deviceID)
	b.metrics.boosted.Set(float64(b.boosted.Len()))
}

// supportedOnly drops the commands d does not support.
func (b *Bridge) supportedOnly(d *device.Device, cmds mapping.Attributes) mapping.Attributes {
	out := cmds[:0]
	for _, cmd := range cmds {
		if !d.Supports(cmd.Name) {
			b.logWarn("unsupported command dropped", "name", d.Name, "id", d.ID, "command", cmd.Name)
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// deviceLock returns the mutex serialising commands for one device.
func (b *Bridge) deviceLock(id string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()

	lock, ok := b.deviceLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		b.deviceLocks[id] = lock
	}
	return lock
}

// recordCommand writes one dispatch to the audit journal, if configured.
func (b *Bridge) recordCommand(ctx context.Context, d *device.Device, cmd mapping.Attribute, res govee.CommandResult) {
	if b.journal == nil {
		return
	}
	entry := &audit.CommandLog{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		Model:      d.Model,
		Command:    cmd.Name,
		Value:      cmd.Value,
		Outcome:    res.Outcome.String(),
		Source:     commandSource,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := b.journal.Create(context.WithoutCancel(ctx), entry); err != nil {
		b.logError("recording command", err, "id", d.ID)
	}
}
