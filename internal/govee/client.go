package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dlashua/govee2mqtt/internal/infrastructure/config"
)

const (
	// APIKeyHeader authenticates every request.
	APIKeyHeader = "Govee-API-Key"

	// maxBodySize bounds how much of a response is read.
	maxBodySize = 1 << 20
)

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client talks to the Govee v1 REST API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	guard      *RateGuard
	logger     Logger

	observer   func(CallEvent)
	observerMu sync.RWMutex
}

// NewClient creates a vendor API client from configuration.
//
// When cfg.RateLimit.Enabled is set, the HTTP transport is wrapped with a
// RateGuard using cfg.RateLimit.Floor.
func NewClient(cfg config.GoveeConfig, logger Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("govee api_key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("govee base_url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("govee base_url: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		timeout:    cfg.RequestTimeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
	if cfg.RateLimit.Enabled {
		c.guard = NewRateGuard(cfg.RateLimit.Floor)
		c.httpClient.Transport = c.guard.Wrap(http.DefaultTransport)
	}
	return c, nil
}

// RateGuard returns the client's rate guard, or nil when disabled.
func (c *Client) RateGuard() *RateGuard {
	return c.guard
}

// SetObserver registers a callback invoked after every vendor call.
func (c *Client) SetObserver(fn func(CallEvent)) {
	c.observerMu.Lock()
	c.observer = fn
	c.observerMu.Unlock()
}

func (c *Client) observe(ev CallEvent) {
	c.observerMu.RLock()
	fn := c.observer
	c.observerMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// ListDevices fetches the account's device list.
//
// A well-formed response with no devices is OutcomeEmpty.
func (c *Client) ListDevices(ctx context.Context) DeviceListResult {
	start := time.Now()
	var env envelope[listData]
	err := c.do(ctx, http.MethodGet, "/v1/devices", nil, &env)

	var res DeviceListResult
	switch {
	case err != nil:
		res = DeviceListResult{Outcome: OutcomeError, Err: err}
	case env.Data == nil || len(env.Data.Devices) == 0:
		res = DeviceListResult{Outcome: OutcomeEmpty}
	default:
		res = DeviceListResult{Outcome: OutcomeOK, Devices: env.Data.Devices}
	}

	c.finish(CallEvent{Op: OpListDevices, Outcome: res.Outcome, Duration: time.Since(start), Err: res.Err})
	return res
}

// GetDeviceState reads the current properties of one device.
//
// The vendor returns properties as a list of single-key objects; they are
// flattened into one map. Later keys win on duplicates.
func (c *Client) GetDeviceState(ctx context.Context, deviceID, model string) StateResult {
	start := time.Now()
	q := url.Values{}
	q.Set("device", deviceID)
	q.Set("model", model)

	var env envelope[stateData]
	err := c.do(ctx, http.MethodGet, "/v1/devices/state?"+q.Encode(), nil, &env)

	var res StateResult
	switch {
	case err != nil:
		res = StateResult{Outcome: OutcomeError, Err: err}
	default:
		props := flattenProperties(env.Data)
		if len(props) == 0 {
			res = StateResult{Outcome: OutcomeEmpty}
		} else {
			res = StateResult{Outcome: OutcomeOK, Properties: props}
		}
	}

	c.finish(CallEvent{Op: OpDeviceState, DeviceID: deviceID, Outcome: res.Outcome, Duration: time.Since(start), Err: res.Err})
	return res
}

// SendCommand issues one control command, e.g. name "turn" value "on".
func (c *Client) SendCommand(ctx context.Context, deviceID, model, name string, value any) CommandResult {
	start := time.Now()
	body := controlRequest{
		Device: deviceID,
		Model:  model,
		Cmd:    controlCmd{Name: name, Value: value},
	}

	var env envelope[json.RawMessage]
	err := c.do(ctx, http.MethodPut, "/v1/devices/control", body, &env)

	res := CommandResult{Outcome: OutcomeOK}
	if err != nil {
		res = CommandResult{Outcome: OutcomeError, Err: err}
	}

	c.finish(CallEvent{Op: OpControl, DeviceID: deviceID, Outcome: res.Outcome, Duration: time.Since(start), Err: res.Err})
	return res
}

func (c *Client) finish(ev CallEvent) {
	if ev.Err != nil && c.logger != nil {
		c.logger.Error("govee api call failed",
			"op", ev.Op,
			"device", ev.DeviceID,
			"duration", ev.Duration,
			"error", ev.Err,
		)
	}
	c.observe(ev)
}

// do performs one request under the per-call timeout and decodes the
// response envelope into out. A non-200 code in the body is an error.
func (c *Client) do(ctx context.Context, method, path string, payload any, out codeCarrier) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.logger != nil {
		c.logger.Debug("govee api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		return HTTPStatusError{Status: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if code, msg := out.status(); code != http.StatusOK {
		return fmt.Errorf("%w: code %d: %s", ErrAPI, code, msg)
	}

	return nil
}

// codeCarrier exposes the body-level status of a decoded envelope.
type codeCarrier interface {
	status() (int, string)
}

func (e *envelope[T]) status() (int, string) {
	return e.Code, e.Message
}

func flattenProperties(data *stateData) map[string]any {
	if data == nil {
		return nil
	}
	props := make(map[string]any)
	for _, entry := range data.Properties {
		for k, v := range entry {
			props[k] = v
		}
	}
	return props
}
