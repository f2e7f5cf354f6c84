package bridge

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dlashua/govee2mqtt/internal/mapping"
)

// newCommandBridge returns a bridge with the lamp registered.
func newCommandBridge(t *testing.T) *testBridge {
	t.Helper()
	tb := newTestBridge(t, testConfig(), newFakeVendor(lampDevice()))
	tb.refreshDeviceList(context.Background())
	return tb
}

func TestHandleCommand_Translation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []sentCommand
	}{
		{
			name:    "state on",
			payload: `{"state":"ON"}`,
			want:    []sentCommand{{Name: "turn", Value: "on"}},
		},
		{
			name:    "state off",
			payload: `{"state":"OFF"}`,
			want:    []sentCommand{{Name: "turn", Value: "off"}},
		},
		{
			name:    "turn alias",
			payload: `{"turn":"ON"}`,
			want:    []sentCommand{{Name: "turn", Value: "on"}},
		},
		{
			name:    "brightness suppresses power",
			payload: `{"state":"ON","brightness":254}`,
			want:    []sentCommand{{Name: "brightness", Value: 100}},
		},
		{
			name:    "brightness rounds half up",
			payload: `{"brightness":127}`,
			want:    []sentCommand{{Name: "brightness", Value: 50}},
		},
		{
			name:    "color suppresses power",
			payload: `{"state":"ON","color":{"r":10,"g":20,"b":30}}`,
			want:    []sentCommand{{Name: "color", Value: mapping.RGB{R: 10, G: 20, B: 30}}},
		},
		{
			name:    "brightness then color",
			payload: `{"color":{"r":1,"g":2,"b":3},"brightness":254}`,
			want: []sentCommand{
				{Name: "brightness", Value: 100},
				{Name: "color", Value: mapping.RGB{R: 1, G: 2, B: 3}},
			},
		},
		{
			name:    "unknown keys only",
			payload: `{"effect":"rainbow"}`,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newCommandBridge(t)

			tb.HandleCommand(context.Background(), lampID, []byte(tt.payload))

			got := tb.vendor.sent()
			if len(got) != len(tt.want) {
				t.Fatalf("sent %d commands, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, want := range tt.want {
				if got[i].Name != want.Name || got[i].Value != want.Value {
					t.Errorf("command[%d] = %s %v, want %s %v", i, got[i].Name, got[i].Value, want.Name, want.Value)
				}
				if got[i].DeviceID != lampID || got[i].Model != "H6159" {
					t.Errorf("command[%d] addressed to %s/%s", i, got[i].DeviceID, got[i].Model)
				}
			}

			if !tb.Boosted().Contains(lampID) {
				t.Error("device not boosted after a command")
			}
		})
	}
}

func TestHandleCommand_DelayBetweenCommands(t *testing.T) {
	tb := newCommandBridge(t)

	tb.HandleCommand(context.Background(), lampID, []byte(`{"brightness":100,"color":{"r":1,"g":2,"b":3}}`))

	if len(tb.vendor.sent()) != 2 {
		t.Fatalf("sent %d commands, want 2", len(tb.vendor.sent()))
	}
	if len(*tb.delays) != 1 || (*tb.delays)[0] != time.Second {
		t.Errorf("delays = %v, want one 1s delay", *tb.delays)
	}

	// A single command waits for nothing.
	*tb.delays = nil
	tb.HandleCommand(context.Background(), lampID, []byte(`{"state":"OFF"}`))
	if len(*tb.delays) != 0 {
		t.Errorf("single command delays = %v", *tb.delays)
	}
}

func TestHandleCommand_CancelledDuringDelay(t *testing.T) {
	tb := newCommandBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tb.HandleCommand(ctx, lampID, []byte(`{"brightness":100,"color":{"r":1,"g":2,"b":3}}`))

	if n := len(tb.vendor.sent()); n != 1 {
		t.Errorf("sent %d commands, want only the first", n)
	}
	if tb.Boosted().Contains(lampID) {
		t.Error("cancelled batch should not boost")
	}
}

func TestHandleCommand_FailureContinuesBatch(t *testing.T) {
	tb := newCommandBridge(t)
	tb.vendor.failCmds["brightness"] = errVendor

	tb.HandleCommand(context.Background(), lampID, []byte(`{"brightness":100,"color":{"r":1,"g":2,"b":3}}`))

	if n := len(tb.vendor.sent()); n != 2 {
		t.Fatalf("sent %d commands, want 2", n)
	}
	if !tb.Boosted().Contains(lampID) {
		t.Error("device not boosted after a partly failed batch")
	}
	if len(tb.log.find("error", "command failed")) != 1 {
		t.Error("failure not logged")
	}

	if got := testutil.ToFloat64(tb.metrics.commands.WithLabelValues("brightness", "error")); got != 1 {
		t.Errorf("brightness error count = %v", got)
	}
	if got := testutil.ToFloat64(tb.metrics.commands.WithLabelValues("color", "ok")); got != 1 {
		t.Errorf("color ok count = %v", got)
	}

	tb.journal.mu.Lock()
	logs := tb.journal.logs
	tb.journal.mu.Unlock()
	if len(logs) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(logs))
	}
	if logs[0].Outcome != "error" || logs[0].Error != errVendor.Error() || logs[0].Source != commandSource {
		t.Errorf("failed entry = %+v", logs[0])
	}
	if logs[1].Outcome != "ok" || logs[1].Error != "" || logs[1].DeviceName != lampName {
		t.Errorf("ok entry = %+v", logs[1])
	}
}

func TestHandleCommand_Dropped(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		payload  string
		wantLog  string
	}{
		{"unknown device", "00:00", `{"state":"ON"}`, "command for unknown device dropped"},
		{"malformed json", lampID, `{"state":`, "malformed command dropped"},
		{"not an object", lampID, `"ON"`, "malformed command dropped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newCommandBridge(t)

			tb.HandleCommand(context.Background(), tt.deviceID, []byte(tt.payload))

			if n := len(tb.vendor.sent()); n != 0 {
				t.Errorf("sent %d commands", n)
			}
			if tb.Boosted().Len() != 0 {
				t.Error("dropped command boosted a device")
			}
			if len(tb.log.find("warn", tt.wantLog)) != 1 {
				t.Errorf("missing warning %q", tt.wantLog)
			}
		})
	}
}

func TestHandleCommand_UnsupportedCommandsDropped(t *testing.T) {
	tests := []struct {
		name      string
		supported []string
		payload   string
		want      []string
		dropped   int
	}{
		{"supported passes", []string{"turn", "brightness"}, `{"brightness":254}`, []string{"brightness"}, 0},
		{"unsupported dropped", []string{"turn"}, `{"brightness":254}`, nil, 1},
		{"mixed batch", []string{"brightness"}, `{"brightness":254,"color":{"r":1,"g":2,"b":3}}`, []string{"brightness"}, 1},
		{"no list accepts all", nil, `{"color":{"r":1,"g":2,"b":3}}`, []string{"color"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lamp := lampDevice()
			lamp.SupportCmds = tt.supported
			tb := newTestBridge(t, testConfig(), newFakeVendor(lamp))
			tb.refreshDeviceList(context.Background())

			tb.HandleCommand(context.Background(), lampID, []byte(tt.payload))

			var got []string
			for _, c := range tb.vendor.sent() {
				got = append(got, c.Name)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("sent = %v, want %v", got, tt.want)
			}
			if n := len(tb.log.find("warn", "unsupported command dropped")); n != tt.dropped {
				t.Errorf("dropped warnings = %d, want %d", n, tt.dropped)
			}
		})
	}
}

func TestHandleCommand_LogsDeviceIdentity(t *testing.T) {
	tb := newCommandBridge(t)

	tb.HandleCommand(context.Background(), lampID, []byte(`{"state":"ON"}`))

	entries := tb.log.find("info", "sending command")
	if len(entries) != 1 {
		t.Fatalf("sending command logs = %d, want 1", len(entries))
	}
	args := entries[0].Args
	if argValue(args, "name") != lampName || argValue(args, "id") != lampID || argValue(args, "command") != "turn" {
		t.Errorf("log args = %v", args)
	}
}

func TestHandleCommand_SerialisedPerDevice(t *testing.T) {
	tb := newCommandBridge(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	tb.vendor.cmdHook = func(string) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb.HandleCommand(context.Background(), lampID, []byte(`{"brightness":100,"color":{"r":1,"g":2,"b":3}}`))
		}()
	}
	wg.Wait()

	if n := len(tb.vendor.sent()); n != 8 {
		t.Errorf("sent %d commands, want 8", n)
	}
	if maxActive != 1 {
		t.Errorf("max concurrent commands for one device = %d, want 1", maxActive)
	}

	// Batches never interleave: commands arrive in brightness, color pairs.
	sent := tb.vendor.sent()
	for i := 0; i+1 < len(sent); i += 2 {
		if sent[i].Name != "brightness" || sent[i+1].Name != "color" {
			t.Fatalf("batch %d interleaved: %s, %s", i/2, sent[i].Name, sent[i+1].Name)
		}
	}
}

func TestHandleSetMessage_IgnoresForeignTopic(t *testing.T) {
	tb := newCommandBridge(t)

	tb.handleSetMessage("govee/a/b/set", []byte(`{"state":"ON"}`))
	tb.Stop()

	if n := len(tb.vendor.sent()); n != 0 {
		t.Errorf("sent %d commands for a foreign topic", n)
	}
}
