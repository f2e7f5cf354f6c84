package govee

import "time"

// Outcome classifies the result of one vendor call.
type Outcome int

const (
	// OutcomeOK means the call succeeded and returned data.
	OutcomeOK Outcome = iota
	// OutcomeEmpty means the call succeeded but returned nothing usable.
	OutcomeEmpty
	// OutcomeError means the call failed; Err holds the cause.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Device is one entry of the vendor's device list.
type Device struct {
	ID           string   `json:"device"`
	Model        string   `json:"model"`
	Name         string   `json:"deviceName"`
	Controllable bool     `json:"controllable"`
	Retrievable  bool     `json:"retrievable"`
	SupportCmds  []string `json:"supportCmds"`
}

// DeviceListResult is the result of ListDevices.
type DeviceListResult struct {
	Outcome Outcome
	Devices []Device
	Err     error
}

// StateResult is the result of GetDeviceState. Properties is the vendor's
// property list flattened into one map, e.g.
// {"online": true, "powerState": "on", "brightness": 80}.
type StateResult struct {
	Outcome    Outcome
	Properties map[string]any
	Err        error
}

// CommandResult is the result of SendCommand. It is never OutcomeEmpty.
type CommandResult struct {
	Outcome Outcome
	Err     error
}

// CallEvent describes one completed vendor call, for metrics and telemetry.
type CallEvent struct {
	Op       string
	DeviceID string
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Operation names reported in CallEvent.Op.
const (
	OpListDevices = "list_devices"
	OpDeviceState = "device_state"
	OpControl     = "control"
)

// envelope is the common response wrapper of the v1 API.
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

type listData struct {
	Devices []Device `json:"devices"`
}

type stateData struct {
	Device     string           `json:"device"`
	Model      string           `json:"model"`
	Properties []map[string]any `json:"properties"`
}

type controlRequest struct {
	Device string     `json:"device"`
	Model  string     `json:"model"`
	Cmd    controlCmd `json:"cmd"`
}

type controlCmd struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}
