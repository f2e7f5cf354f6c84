package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dlashua/govee2mqtt/internal/audit"
	"github.com/dlashua/govee2mqtt/internal/device"
	"github.com/dlashua/govee2mqtt/internal/govee"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/config"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/mqtt"
	"github.com/dlashua/govee2mqtt/internal/mapping"
)

// MQTTClient is the broker surface the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Connector opens the broker connection. Start calls it exactly once; the
// returned client is expected to reconnect on its own after a drop.
type Connector func(ctx context.Context) (MQTTClient, error)

// VendorAPI is the Govee API surface the bridge needs. *govee.Client
// satisfies it.
type VendorAPI interface {
	ListDevices(ctx context.Context) govee.DeviceListResult
	GetDeviceState(ctx context.Context, deviceID, model string) govee.StateResult
	SendCommand(ctx context.Context, deviceID, model, name string, value any) govee.CommandResult
}

// Telemetry receives attribute changes and vendor call outcomes for
// long-term storage. Writes must not block.
type Telemetry interface {
	WriteAttributeChange(deviceID, deviceName, attribute string, value any, at time.Time)
	WriteVendorCall(op, deviceID, outcome string, duration time.Duration, at time.Time)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bridge polls the Govee API, publishes device state to MQTT and forwards
// MQTT commands to the API.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Bridge struct {
	cfg      *config.Config
	connect  Connector
	vendor   VendorAPI
	registry *device.Registry
	boosted  *device.BoostSet
	topics   mqtt.Topics
	qos      byte
	version  string

	toBridge mapping.Table
	toVendor mapping.Table

	metrics   *Metrics
	telemetry Telemetry
	journal   audit.Repository

	lifecycle *Lifecycle

	client   MQTTClient
	clientMu sync.RWMutex

	deviceLocks map[string]*sync.Mutex
	locksMu     sync.Mutex

	// sleep waits between successive vendor commands. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) bool
	// pollWait waits between poll cycles. Replaced in tests.
	pollWait func(ctx context.Context, d time.Duration) bool

	// Lifecycle management
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopping  bool
	stopMu    sync.Mutex
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	logger   Logger
	loggerMu sync.RWMutex
}

// BridgeOptions contains dependencies for creating a Bridge.
type BridgeOptions struct {
	// Config is the loaded application configuration.
	Config *config.Config

	// Connect opens the MQTT connection when the bridge starts.
	Connect Connector

	// Vendor is the Govee API client.
	Vendor VendorAPI

	// Registry and Boosted are created when nil. Pass them in to share
	// them with the status API.
	Registry *device.Registry
	Boosted  *device.BoostSet

	// Metrics is created when nil.
	Metrics *Metrics

	// Telemetry is optional. If nil, nothing is written.
	Telemetry Telemetry

	// Journal is the optional command audit journal.
	Journal audit.Repository

	// Logger is optional structured logger.
	Logger Logger

	// Version is reported in discovery configs.
	Version string
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Connect == nil {
		return nil, fmt.Errorf("MQTT connector is required")
	}
	if opts.Vendor == nil {
		return nil, fmt.Errorf("vendor API is required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = device.NewRegistry()
	}
	boosted := opts.Boosted
	if boosted == nil {
		boosted = device.NewBoostSet()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	// Create bridge-level context for loop and command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	cfg := opts.Config
	scale := cfg.Bridge.BrightnessScale
	b := &Bridge{
		cfg:         cfg,
		connect:     opts.Connect,
		vendor:      opts.Vendor,
		registry:    registry,
		boosted:     boosted,
		topics:      mqtt.NewTopics(cfg.MQTT.Prefix, cfg.MQTT.HomeAssistant),
		qos:         byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2 by config
		version:     opts.Version,
		toBridge:    mapping.VendorToBridge(scale),
		toVendor:    mapping.BridgeToVendor(scale),
		metrics:     metrics,
		telemetry:   opts.Telemetry,
		journal:     opts.Journal,
		lifecycle:   NewLifecycle(cfg.MQTT.Reconnect.GracePeriod, cfg.MQTT.Reconnect.MinSession),
		deviceLocks: make(map[string]*sync.Mutex),
		sleep:       sleepContext,
		pollWait:    sleepContext,
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}
	b.lifecycle.OnChange(b.handleStateChange)

	return b, nil
}

// Start connects to the broker, subscribes to command topics and starts
// the poll loops.
//
// A failed connect or subscribe terminates the bridge with
// ErrConnectFailed; the same error is returned.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.lifecycle.Begin(); err != nil {
		return err
	}

	client, err := b.connect(ctx)
	if err != nil {
		return b.failStart(err)
	}

	b.clientMu.Lock()
	b.client = client
	b.clientMu.Unlock()

	client.SetOnConnect(b.handleConnect)
	client.SetOnDisconnect(b.handleDisconnect)

	setTopic := b.topics.SetSubscribe()
	if err := client.Subscribe(setTopic, b.qos, b.handleSetMessage); err != nil {
		return b.failStart(fmt.Errorf("subscribe to %s: %w", setTopic, err))
	}
	b.logInfo("subscribed to commands", "topic", setTopic)

	if err := b.lifecycle.Connected(); err != nil {
		return err
	}

	b.startLoop("device list", b.cfg.GetDeviceListInterval(), b.refreshDeviceList)
	b.startLoop("device state", b.cfg.GetDeviceInterval(), b.refreshNormal)
	b.startLoop("boosted state", b.cfg.GetDeviceBoostInterval(), b.refreshBoosted)

	b.logInfo("bridge started",
		"prefix", b.topics.Prefix(),
		"discovery", b.topics.HasDiscovery(),
		"brightness_scale", b.cfg.Bridge.BrightnessScale)

	return nil
}

func (b *Bridge) failStart(err error) error {
	err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
	b.lifecycle.Terminate(err)
	return err
}

// Stop gracefully shuts down the bridge. It drops the command
// subscription, cancels the poll loops and in-flight commands and waits
// for them to return.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopping = true
		b.stopMu.Unlock()

		if client := b.mqttClient(); client != nil && client.IsConnected() {
			topic := b.topics.SetSubscribe()
			if err := client.Unsubscribe(topic); err != nil {
				b.logWarn("unsubscribe from commands failed", "topic", topic, "error", err)
			}
		}

		// Cancel bridge context to abort loops and in-flight vendor calls
		b.ctxCancel()

		// Wait for pending operations
		b.wg.Wait()

		b.lifecycle.Terminate(nil)
		b.logInfo("bridge stopped")
	})
}

// Done is closed when the bridge reaches the terminated state, either
// through Stop or a fatal connection error.
func (b *Bridge) Done() <-chan struct{} {
	return b.lifecycle.Done()
}

// Err returns the fatal error that terminated the bridge, or nil.
func (b *Bridge) Err() error {
	return b.lifecycle.Err()
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return b.lifecycle.State()
}

// Registry returns the device registry.
func (b *Bridge) Registry() *device.Registry {
	return b.registry
}

// Boosted returns the boosted device set.
func (b *Bridge) Boosted() *device.BoostSet {
	return b.boosted
}

// ObserveVendorCall records one vendor call in metrics and telemetry.
// Register it with govee.Client.SetObserver.
func (b *Bridge) ObserveVendorCall(ev govee.CallEvent) {
	b.metrics.observeCall(ev)
	if b.telemetry != nil {
		b.telemetry.WriteVendorCall(ev.Op, ev.DeviceID, ev.Outcome.String(), ev.Duration, time.Now())
	}
}

func (b *Bridge) handleConnect() {
	if err := b.lifecycle.Connected(); err != nil {
		b.logDebug("connect event ignored", "state", b.lifecycle.State().String())
		return
	}
	b.logInfo("mqtt connected")
}

func (b *Bridge) handleDisconnect(err error) {
	b.logWarn("mqtt connection lost", "error", err)
	b.lifecycle.Disconnected()
}

func (b *Bridge) handleStateChange(from, to State) {
	b.metrics.state.Set(float64(to))

	switch to {
	case StateReconnecting:
		b.logWarn("waiting for mqtt reconnect",
			"grace_period", b.cfg.MQTT.Reconnect.GracePeriod)
	case StateTerminated:
		if err := b.lifecycle.Err(); err != nil {
			b.logError("bridge terminated", err)
			// Stop the loops without waiting; Stop may be running already.
			b.ctxCancel()
			return
		}
	}
	b.logDebug("lifecycle transition", "from", from.String(), "to", to.String())
}

// track registers one goroutine with the wait group unless Stop has begun.
func (b *Bridge) track() bool {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopping {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *Bridge) mqttClient() MQTTClient {
	b.clientMu.RLock()
	defer b.clientMu.RUnlock()
	return b.client
}

// running reports whether cycles should do work. Cycles skip their work
// while reconnecting so changes are not consumed without being published.
func (b *Bridge) running() bool {
	return b.lifecycle.State() == StateRunning
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics is a point-in-time summary for the status API.
type BridgeMetrics struct {
	State          string `json:"state"`
	Connected      bool   `json:"mqtt_connected"`
	DevicesManaged int    `json:"devices"`
	DevicesBoosted int    `json:"boosted"`
}

// GetMetrics returns the current bridge summary.
func (b *Bridge) GetMetrics() BridgeMetrics {
	connected := false
	if client := b.mqttClient(); client != nil {
		connected = client.IsConnected()
	}
	return BridgeMetrics{
		State:          b.lifecycle.State().String(),
		Connected:      connected,
		DevicesManaged: b.registry.Count(),
		DevicesBoosted: b.boosted.Len(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
