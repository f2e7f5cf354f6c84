package device

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dlashua/govee2mqtt/internal/govee"
	"github.com/dlashua/govee2mqtt/internal/mapping"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory catalogue of controllable devices.
//
// Devices are created on first sighting in the vendor list and are never
// removed for the lifetime of the process.
//
// All public methods are thread-safe. Returned devices are deep copies.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// UpsertFromList merges one vendor device list into the registry.
//
// Controllable entries are created if absent, taking their model at
// creation. Name, supported commands and state readability are refreshed
// on every call. Entries the vendor marks as not controllable are skipped. A device already registered stays registered
// even if a later list reports it as not controllable.
//
// Returns:
//   - []Device: copies of the devices created by this call, in list order
func (r *Registry) UpsertFromList(entries []govee.Device) []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []Device
	for _, e := range entries {
		if !e.Controllable {
			r.logger.Debug("skipping non-controllable device", "id", e.ID, "model", e.Model)
			continue
		}

		d, ok := r.devices[e.ID]
		if !ok {
			d = &Device{
				ID:         e.ID,
				Model:      e.Model,
				Attributes: make(map[string]any),
				FirstSeen:  r.now().UTC(),
			}
			r.devices[e.ID] = d
		}
		d.Name = e.Name
		d.SupportedCommands = slices.Clone(e.SupportCmds)
		d.Retrievable = e.Retrievable

		if !ok {
			added = append(added, *d.DeepCopy())
			r.logger.Info("device registered", "id", e.ID, "model", e.Model, "name", e.Name)
		}
	}
	return added
}

// DiffAndApply compares attrs with the stored values of one device and
// stores every attribute that differs.
//
// The comparison and update happen under one lock acquisition, so
// concurrent callers never report the same change twice. Attributes absent
// from attrs are left untouched.
//
// Returns:
//   - []Change: changed attributes in attrs order; empty when nothing changed
//   - error: ErrDeviceNotFound for an unregistered id
func (r *Registry) DiffAndApply(id string, attrs mapping.Attributes) ([]Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	var changes []Change
	for _, attr := range attrs {
		prev, had := d.Attributes[attr.Name]
		if had && valuesEqual(prev, attr.Value) {
			continue
		}
		d.Attributes[attr.Name] = attr.Value
		changes = append(changes, Change{
			Attribute: attr.Name,
			Value:     attr.Value,
			Previous:  prev,
			First:     !had,
		})
	}

	if len(changes) > 0 {
		now := r.now().UTC()
		d.StateUpdatedAt = &now
	}
	return changes, nil
}

// Get returns a copy of one device.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// List returns copies of all devices sorted by ID.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d.DeepCopy())
	}
	slices.SortFunc(out, func(a, b Device) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// IDs returns all device IDs sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
