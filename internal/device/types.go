package device

import (
	"reflect"
	"slices"
	"time"
)

// Device is one controllable vendor device.
type Device struct {
	ID                string         `json:"id"`
	Model             string         `json:"model"`
	Name              string         `json:"name"`
	SupportedCommands []string       `json:"supported_commands"`
	Retrievable       bool           `json:"retrievable"`
	Attributes        map[string]any `json:"attributes"`
	FirstSeen         time.Time      `json:"first_seen"`
	StateUpdatedAt    *time.Time     `json:"state_updated_at,omitempty"`
}

// Supports reports whether the vendor listed cmd for this device. A device
// listed without any commands is assumed to support all of them.
func (d *Device) Supports(cmd string) bool {
	return len(d.SupportedCommands) == 0 || slices.Contains(d.SupportedCommands, cmd)
}

// DeepCopy returns a copy that shares no mutable state with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.SupportedCommands = slices.Clone(d.SupportedCommands)
	cpy.Attributes = make(map[string]any, len(d.Attributes))
	for k, v := range d.Attributes {
		cpy.Attributes[k] = deepCopyValue(v)
	}
	if d.StateUpdatedAt != nil {
		t := *d.StateUpdatedAt
		cpy.StateUpdatedAt = &t
	}
	return &cpy
}

// deepCopyValue recursively copies nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, e := range val {
			cpy[k] = deepCopyValue(e)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, e := range val {
			cpy[i] = deepCopyValue(e)
		}
		return cpy
	default:
		// Scalars and value structs such as mapping.RGB copy by value.
		return v
	}
}

// Change is one attribute whose value differed from the stored baseline.
type Change struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
	Previous  any    `json:"previous,omitempty"`
	// First is true when the attribute had no stored value yet.
	First bool `json:"first"`
}

// valuesEqual compares attribute values. Colors are value structs and
// compare with ==; nested maps fall back to reflect.DeepEqual.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a.(type) {
	case map[string]any, []any:
		return reflect.DeepEqual(a, b)
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}
