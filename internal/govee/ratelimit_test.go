package govee

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dlashua/govee2mqtt/internal/infrastructure/config"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestRateGuard_AllowsUntilHeadersSeen(t *testing.T) {
	g := NewRateGuard(5)
	now := time.Now()

	for i := 0; i < 10; i++ {
		if d := g.ShouldCall(now); !d.Allowed {
			t.Fatalf("call %d refused before any headers: %+v", i, d)
		}
	}
	if g.Remaining() != -1 {
		t.Errorf("Remaining() = %d, want -1", g.Remaining())
	}
}

func TestRateGuard_BudgetFloor(t *testing.T) {
	g := NewRateGuard(2)
	now := time.Now()
	g.now = func() time.Time { return now }

	g.RecordResponse(200, headers(headerRemaining, "4", headerReset, "30"))

	// 4 -> 3 -> 2, then held at the floor.
	if !g.ShouldCall(now).Allowed || !g.ShouldCall(now).Allowed {
		t.Fatal("calls above the floor should be allowed")
	}
	d := g.ShouldCall(now)
	if d.Allowed {
		t.Fatal("call at the floor should be refused")
	}
	if d.Reason != "budget" || !d.RetryAt.Equal(now.Add(30*time.Second)) {
		t.Errorf("decision = %+v", d)
	}

	// Window reset frees the budget.
	if !g.ShouldCall(now.Add(31 * time.Second)).Allowed {
		t.Error("call after reset should be allowed")
	}
}

func TestRateGuard_ResetAsUnixTimestamp(t *testing.T) {
	g := NewRateGuard(0)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	g.RecordResponse(200, headers(headerRemaining, "0", headerReset, "1700000060"))

	d := g.ShouldCall(now)
	if d.Allowed {
		t.Fatal("exhausted budget should refuse")
	}
	if !d.RetryAt.Equal(time.Unix(1_700_000_060, 0)) {
		t.Errorf("RetryAt = %v", d.RetryAt)
	}
}

func TestRateGuard_FallbackHeaders(t *testing.T) {
	g := NewRateGuard(1)
	g.RecordResponse(200, headers(headerXRemaining, "9"))

	if got := g.Remaining(); got != 9 {
		t.Errorf("Remaining() = %d, want 9", got)
	}
}

func TestRateGuard_RetryAfterCooldown(t *testing.T) {
	g := NewRateGuard(0)
	now := time.Now()
	g.now = func() time.Time { return now }

	g.RecordResponse(http.StatusTooManyRequests, headers(headerRetryAfter, "10"))

	if d := g.ShouldCall(now.Add(5 * time.Second)); d.Allowed || d.Reason != "cooldown" {
		t.Errorf("during cooldown: %+v", d)
	}
	if d := g.ShouldCall(now.Add(11 * time.Second)); !d.Allowed {
		t.Errorf("after cooldown: %+v", d)
	}
}

func TestRateGuard_TooManyRequestsWithoutHeaders(t *testing.T) {
	g := NewRateGuard(0)
	now := time.Now()
	g.now = func() time.Time { return now }

	g.RecordResponse(http.StatusTooManyRequests, http.Header{})

	if d := g.ShouldCall(now.Add(defaultCooldown - time.Second)); d.Allowed {
		t.Error("429 without headers should start the default cooldown")
	}
}

func TestRateGuard_TransportRefusesWithErrRateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set(headerRemaining, "1")
		w.Header().Set(headerReset, "60")
		_, _ = io.WriteString(w, `{"code":200,"data":{"devices":[]}}`)
	}))
	defer server.Close()

	client, err := NewClient(config.GoveeConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		RequestTimeout: time.Second,
		RateLimit:      config.RateLimitConfig{Enabled: true, Floor: 1},
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if res := client.ListDevices(context.Background()); res.Outcome != OutcomeEmpty {
		t.Fatalf("first call: %v / %v", res.Outcome, res.Err)
	}

	res := client.ListDevices(context.Background())
	if res.Outcome != OutcomeError {
		t.Fatalf("second call Outcome = %v, want error", res.Outcome)
	}
	if !errors.Is(res.Err, ErrRateLimited) {
		t.Errorf("Err = %v, want ErrRateLimited", res.Err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestRateGuard_CollectorsPerGuard(t *testing.T) {
	a, b := NewRateGuard(0), NewRateGuard(0)

	regA := prometheus.NewRegistry()
	regA.MustRegister(a.Collectors()...)
	regB := prometheus.NewRegistry()
	regB.MustRegister(b.Collectors()...)

	a.RecordResponse(200, headers(headerRemaining, "42"))
	b.RecordResponse(200, headers(headerRemaining, "7"))

	if got := testutil.ToFloat64(a.remainingGauge); got != 42 {
		t.Errorf("guard a remaining gauge = %v, want 42", got)
	}
	if got := testutil.ToFloat64(b.remainingGauge); got != 7 {
		t.Errorf("guard b remaining gauge = %v, want 7", got)
	}
}

func TestRateGuard_RefusalsCounted(t *testing.T) {
	g := NewRateGuard(0)
	now := time.Now()
	g.now = func() time.Time { return now }

	g.RecordResponse(http.StatusTooManyRequests, headers(headerRetryAfter, "10"))
	g.ShouldCall(now)
	g.ShouldCall(now)

	if got := testutil.ToFloat64(g.refused.WithLabelValues("cooldown")); got != 2 {
		t.Errorf("refused{cooldown} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(g.lastStatusGauge); got != http.StatusTooManyRequests {
		t.Errorf("last status gauge = %v, want 429", got)
	}
}
