// Package mapping converts attribute maps between the vendor's property
// names and the bridge's public MQTT attributes.
//
// Conversions are declarative: a Table is an ordered list of entries, each
// naming a destination key, the source keys it accepts and a chain of
// Transforms. Transforms are plain values (a Kind plus parameters) so the
// tables can be inspected and tested without running the bridge.
package mapping
