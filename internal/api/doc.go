// Package api implements the read-only HTTP status API for govee2mqtt.
//
// This package provides:
//   - A health endpoint reporting the bridge lifecycle state and MQTT link
//   - Device registry and boosted-set inspection
//   - The command audit journal, when the database is enabled
//   - Prometheus metrics at /metrics
//
// # Architecture
//
// The API never sends commands. Device control stays on MQTT; the server
// only reads the registry, the boosted set and the journal that the bridge
// maintains.
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
