// Package bridge connects the Govee cloud API to MQTT.
//
// A Bridge owns three independent poll loops (device list, normal-rate
// state, boosted state), the inbound command dispatcher and the lifecycle
// state machine that decides when a lost broker connection is fatal.
//
// Topic layout, relative to the configured prefix:
//
//	<prefix>/<id>/set          inbound JSON command
//	<prefix>/<id>              retained aggregate state
//	<prefix>/<id>/<attribute>  retained per-attribute state
//	<prefix>/bridge/status     retained online/offline
//
// When a Home Assistant discovery prefix is configured, each newly seen
// device gets a retained light config under <discovery>/light/.
package bridge
