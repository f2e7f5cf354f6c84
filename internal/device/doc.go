// Package device holds the bridge's in-memory view of the vendor's devices.
//
// # Key Types
//
//   - Device: one controllable light plus the last published value of each
//     bridge attribute
//   - Registry: the thread-safe catalogue of devices, fed by the device list
//     cycle and diffed by the state cycles
//   - BoostSet: the devices currently polled at the fast rate
//
// Nothing here is persisted. The registry starts empty on every run and is
// rebuilt from the vendor's device list.
//
// # Concurrency
//
// Three poll cycles and the command handler share one Registry and one
// BoostSet. DiffAndApply holds the registry lock for the whole
// read-compare-write of one device, so two cycles refreshing the same
// device cannot both report the same change. Vendor calls are never made
// while a lock is held.
//
// # Usage
//
//	reg := device.NewRegistry()
//	added := reg.UpsertFromList(result.Devices)
//	changes, err := reg.DiffAndApply(id, mapping.Translate(props, table))
package device
