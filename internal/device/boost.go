package device

import (
	"slices"
	"sync"
)

// BoostSet is the set of devices polled at the fast rate after a command.
//
// Every Add bumps the device's generation. Demotion through RemoveIf only
// succeeds for the generation the caller observed before its state read,
// so a command sent while a read is in flight keeps the device boosted.
//
// All methods are thread-safe.
type BoostSet struct {
	mu      sync.Mutex
	entries map[string]*boostEntry
	nextGen uint64
}

type boostEntry struct {
	gen      uint64
	failures int
}

// NewBoostSet creates an empty set.
func NewBoostSet() *BoostSet {
	return &BoostSet{entries: make(map[string]*boostEntry)}
}

// Add boosts a device, or renews the boost of a boosted one. Renewal
// starts a new generation and clears the failed read count.
func (b *BoostSet) Add(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextGen++
	b.entries[id] = &boostEntry{gen: b.nextGen}
}

// Generation returns the current boost generation of a device.
func (b *BoostSet) Generation(id string) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return 0, false
	}
	return e.gen, true
}

// RemoveIf un-boosts a device if it is still at generation gen, and
// reports whether it did.
func (b *BoostSet) RemoveIf(id string, gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok || e.gen != gen {
		return false
	}
	delete(b.entries, id)
	return true
}

// RecordFailure counts one failed state read against generation gen and
// returns the consecutive failure count. A stale generation is not
// counted and returns 0.
func (b *BoostSet) RecordFailure(id string, gen uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok || e.gen != gen {
		return 0
	}
	e.failures++
	return e.failures
}

// Contains reports whether a device is boosted.
func (b *BoostSet) Contains(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[id]
	return ok
}

// IDs returns the boosted device IDs, sorted.
func (b *BoostSet) IDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.entries))
	for id := range b.entries {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of boosted devices.
func (b *BoostSet) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
