package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dlashua/govee2mqtt/internal/audit"
	"github.com/dlashua/govee2mqtt/internal/govee"
	"github.com/dlashua/govee2mqtt/internal/infrastructure/config"
)

// =============================================================================
// MQTT
// =============================================================================

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	unsubscribed  []string
	handlers      map[string]func(topic string, payload []byte)
	connected     bool
	onConnect     func()
	onDisconnect  func(err error)
	subscribeErr  error
	publishErr    error
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		handlers:  make(map[string]func(topic string, payload []byte)),
		connected: true,
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetOnConnect(callback func()) {
	m.mu.Lock()
	m.onConnect = callback
	m.mu.Unlock()
}

func (m *MockMQTTClient) SetOnDisconnect(callback func(err error)) {
	m.mu.Lock()
	m.onDisconnect = callback
	m.mu.Unlock()
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mockPublish, len(m.published))
	copy(result, m.published)
	return result
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// PublishedTo returns every payload sent to topic, oldest first.
func (m *MockMQTTClient) PublishedTo(topic string) [][]byte {
	var out [][]byte
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

// SimulateMessage delivers a message to the handler subscribed with the
// matching single-level wildcard filter.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var handler func(string, []byte)
	for filter, h := range m.handlers {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()

	if handler != nil {
		handler(topic, payload)
	}
}

func (m *MockMQTTClient) SimulateDisconnect(err error) {
	m.mu.Lock()
	m.connected = false
	cb := m.onDisconnect
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (m *MockMQTTClient) SimulateReconnect() {
	m.mu.Lock()
	m.connected = true
	cb := m.onConnect
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func topicMatches(filter, topic string) bool {
	fi, ti := 0, 0
	for fi < len(filter) && ti < len(topic) {
		if filter[fi] == '+' {
			for ti < len(topic) && topic[ti] != '/' {
				ti++
			}
			fi++
			continue
		}
		if filter[fi] != topic[ti] {
			return false
		}
		fi++
		ti++
	}
	return fi == len(filter) && ti == len(topic)
}

// =============================================================================
// Vendor API
// =============================================================================

type sentCommand struct {
	DeviceID string
	Model    string
	Name     string
	Value    any
}

// fakeVendor implements VendorAPI with canned results.
type fakeVendor struct {
	mu        sync.Mutex
	list      govee.DeviceListResult
	states    map[string]govee.StateResult
	failCmds  map[string]error // by command name
	commands  []sentCommand
	listCalls int
	reads     map[string]int

	// cmdHook runs inside SendCommand, outside the fake's lock.
	cmdHook func(deviceID string)
	// stateHook runs at the start of GetDeviceState, outside the fake's lock.
	stateHook func(ctx context.Context, deviceID string)
}

func newFakeVendor(devices ...govee.Device) *fakeVendor {
	return &fakeVendor{
		list:     govee.DeviceListResult{Outcome: govee.OutcomeOK, Devices: devices},
		states:   make(map[string]govee.StateResult),
		failCmds: make(map[string]error),
		reads:    make(map[string]int),
	}
}

func (f *fakeVendor) ListDevices(context.Context) govee.DeviceListResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.list
}

func (f *fakeVendor) GetDeviceState(ctx context.Context, deviceID, _ string) govee.StateResult {
	f.mu.Lock()
	hook := f.stateHook
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, deviceID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[deviceID]++
	res, ok := f.states[deviceID]
	if !ok {
		return govee.StateResult{Outcome: govee.OutcomeEmpty}
	}
	return res
}

func (f *fakeVendor) SendCommand(_ context.Context, deviceID, model, name string, value any) govee.CommandResult {
	f.mu.Lock()
	hook := f.cmdHook
	f.mu.Unlock()
	if hook != nil {
		hook(deviceID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, sentCommand{DeviceID: deviceID, Model: model, Name: name, Value: value})
	if err := f.failCmds[name]; err != nil {
		return govee.CommandResult{Outcome: govee.OutcomeError, Err: err}
	}
	return govee.CommandResult{Outcome: govee.OutcomeOK}
}

func (f *fakeVendor) setState(id string, props map[string]any) {
	f.mu.Lock()
	f.states[id] = govee.StateResult{Outcome: govee.OutcomeOK, Properties: props}
	f.mu.Unlock()
}

func (f *fakeVendor) setStateResult(id string, res govee.StateResult) {
	f.mu.Lock()
	f.states[id] = res
	f.mu.Unlock()
}

func (f *fakeVendor) setStateHook(hook func(ctx context.Context, deviceID string)) {
	f.mu.Lock()
	f.stateHook = hook
	f.mu.Unlock()
}

func (f *fakeVendor) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeVendor) sent() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCommand, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *fakeVendor) readCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[id]
}

// =============================================================================
// Optional sinks
// =============================================================================

type fakeJournal struct {
	mu   sync.Mutex
	logs []audit.CommandLog
}

func (j *fakeJournal) Create(_ context.Context, log *audit.CommandLog) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, *log)
	return nil
}

func (j *fakeJournal) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &audit.ListResult{Logs: j.logs, Total: len(j.logs)}, nil
}

type attributeWrite struct {
	DeviceID  string
	Attribute string
	Value     any
}

type fakeTelemetry struct {
	mu         sync.Mutex
	attributes []attributeWrite
	calls      []string
}

func (f *fakeTelemetry) WriteAttributeChange(deviceID, _, attribute string, value any, _ time.Time) {
	f.mu.Lock()
	f.attributes = append(f.attributes, attributeWrite{DeviceID: deviceID, Attribute: attribute, Value: value})
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteVendorCall(op, _, outcome string, _ time.Duration, _ time.Time) {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+outcome)
	f.mu.Unlock()
}

type logEntry struct {
	Level string
	Msg   string
	Args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) find(level, msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.Level == level && e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func argValue(args []any, key string) any {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1]
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

const (
	lampID   = "AA:BB:CC:DD:EE:FF:00:11"
	lampObj  = "AABBCCDDEEFF0011"
	lampName = "Desk Lamp"
)

func lampDevice() govee.Device {
	return govee.Device{
		ID:           lampID,
		Model:        "H6159",
		Name:         lampName,
		Controllable: true,
		Retrievable:  true,
		SupportCmds:  []string{"turn", "brightness", "color"},
	}
}

// testConfig returns a configuration whose poll intervals never elapse
// during a test, so each loop runs its first cycle only.
func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			QoS:           1,
			Prefix:        "govee",
			HomeAssistant: "homeassistant",
			Reconnect: config.MQTTReconnectConfig{
				GracePeriod: time.Hour,
			},
		},
		Govee: config.GoveeConfig{
			DeviceListInterval:  3600,
			DeviceInterval:      3600,
			DeviceBoostInterval: 3600,
			CommandDelay:        time.Second,
		},
		Bridge: config.BridgeConfig{BrightnessScale: 254},
	}
}

type testBridge struct {
	*Bridge
	mqtt    *MockMQTTClient
	vendor  *fakeVendor
	delays  *[]time.Duration
	journal *fakeJournal
	tel     *fakeTelemetry
	log     *captureLogger
}

// newTestBridge builds a bridge wired to mocks. The inter-command delay
// is recorded instead of slept.
func newTestBridge(t *testing.T, cfg *config.Config, vendor *fakeVendor) *testBridge {
	t.Helper()

	client := NewMockMQTTClient()
	journal := &fakeJournal{}
	tel := &fakeTelemetry{}
	logger := &captureLogger{}

	b, err := NewBridge(BridgeOptions{
		Config: cfg,
		Connect: func(context.Context) (MQTTClient, error) {
			return client, nil
		},
		Vendor:    vendor,
		Journal:   journal,
		Telemetry: tel,
		Logger:    logger,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	t.Cleanup(b.Stop)

	var delays []time.Duration
	var delaysMu sync.Mutex
	b.sleep = func(ctx context.Context, d time.Duration) bool {
		delaysMu.Lock()
		delays = append(delays, d)
		delaysMu.Unlock()
		return ctx.Err() == nil
	}

	// Cycle and command tests drive the bridge directly without Start.
	b.client = client

	return &testBridge{
		Bridge:  b,
		mqtt:    client,
		vendor:  vendor,
		delays:  &delays,
		journal: journal,
		tel:     tel,
		log:     logger,
	}
}

func decode(t *testing.T, payload []byte) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		t.Fatalf("payload %q is not JSON: %v", payload, err)
	}
	return v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errVendor = errors.New("vendor says no")
