package bridge

import (
	"context"
	"time"

	"github.com/dlashua/govee2mqtt/internal/device"
	"github.com/dlashua/govee2mqtt/internal/govee"
	"github.com/dlashua/govee2mqtt/internal/mapping"
)

// startLoop runs cycle immediately and then once per interval until the
// bridge context is cancelled. A cycle is skipped while the bridge is not
// running.
func (b *Bridge) startLoop(name string, interval time.Duration, cycle func(ctx context.Context)) {
	if !b.track() {
		return
	}
	go func() {
		defer b.wg.Done()
		b.logDebug("poll loop started", "loop", name, "interval", interval)

		for {
			if b.running() {
				cycle(b.ctx)
			}
			if !b.pollWait(b.ctx, interval) {
				b.logDebug("poll loop stopped", "loop", name)
				return
			}
		}
	}()
}

// refreshDeviceList merges the vendor device list into the registry and
// announces devices seen for the first time.
func (b *Bridge) refreshDeviceList(ctx context.Context) {
	res := b.vendor.ListDevices(ctx)
	if res.Outcome != govee.OutcomeOK {
		b.logDebug("device list not updated", "outcome", res.Outcome.String())
		return
	}

	added := b.registry.UpsertFromList(res.Devices)
	b.metrics.devices.Set(float64(b.registry.Count()))

	for _, d := range added {
		b.publishDiscovery(d)
	}
}

// refreshNormal refreshes every registered device that is not boosted.
func (b *Bridge) refreshNormal(ctx context.Context) {
	for _, id := range b.registry.IDs() {
		if ctx.Err() != nil {
			return
		}
		if b.boosted.Contains(id) {
			continue
		}
		b.refreshDevice(ctx, id)
	}
}

// maxBoostedFailures is the number of consecutive failed state reads after
// which a boosted device drops back to the normal rate.
const maxBoostedFailures = 3

// refreshBoosted refreshes every boosted device.
//
// A device leaves the boosted set when a read returns no change, when the
// vendor has no state for it, or after maxBoostedFailures failed reads in a
// row. Demotion is skipped if the device was boosted again while its read
// was in flight.
func (b *Bridge) refreshBoosted(ctx context.Context) {
	for _, id := range b.boosted.IDs() {
		if ctx.Err() != nil {
			return
		}
		gen, ok := b.boosted.Generation(id)
		if !ok {
			continue
		}

		changes, outcome := b.refreshDevice(ctx, id)
		switch outcome {
		case govee.OutcomeOK:
			if len(changes) == 0 && b.boosted.RemoveIf(id, gen) {
				b.logDebug("device settled, leaving boosted polling", "id", id)
			}
		case govee.OutcomeEmpty:
			if b.boosted.RemoveIf(id, gen) {
				b.logDebug("no state for device, leaving boosted polling", "id", id)
			}
		case govee.OutcomeError:
			if ctx.Err() != nil {
				return
			}
			if n := b.boosted.RecordFailure(id, gen); n >= maxBoostedFailures && b.boosted.RemoveIf(id, gen) {
				b.logWarn("state reads keep failing, leaving boosted polling", "id", id, "failures", n)
			}
		}
	}
	b.metrics.boosted.Set(float64(b.boosted.Len()))
}

// refreshDevice reads, translates, diffs and publishes one device. Devices
// the vendor marks as not retrievable are never read and report
// OutcomeEmpty.
//
// Returns:
//   - []device.Change: the changes published
//   - govee.Outcome: the outcome of the state read
func (b *Bridge) refreshDevice(ctx context.Context, id string) ([]device.Change, govee.Outcome) {
	d, err := b.registry.Get(id)
	if err != nil {
		b.logError("refresh of unregistered device", err, "id", id)
		return nil, govee.OutcomeError
	}
	if !d.Retrievable {
		return nil, govee.OutcomeEmpty
	}

	res := b.vendor.GetDeviceState(ctx, d.ID, d.Model)
	if res.Outcome != govee.OutcomeOK {
		b.logDebug("no state this cycle", "id", id, "outcome", res.Outcome.String())
		return nil, res.Outcome
	}

	attrs := mapping.Translate(res.Properties, b.toBridge)
	changes, err := b.registry.DiffAndApply(id, attrs)
	if err != nil {
		b.logError("applying device state", err, "id", id)
		return nil, govee.OutcomeError
	}

	if len(changes) > 0 {
		b.publishChanges(d, changes)
	}
	return changes, govee.OutcomeOK
}
