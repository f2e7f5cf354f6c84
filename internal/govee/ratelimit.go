package govee

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rate-limit headers sent by the vendor. The X- variants are fallbacks
// seen on some gateway responses.
const (
	headerRemaining  = "API-RateLimit-Remaining"
	headerReset      = "API-RateLimit-Reset"
	headerXRemaining = "X-RateLimit-Remaining"
	headerXReset     = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"

	// defaultCooldown applies to a 429 that names no reset time.
	defaultCooldown = time.Minute
)

// RateLimitError is returned by the guarded transport when a call is held
// back. It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	Reason  string
	RetryAt time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("govee rate limited: %s", e.Reason)
	}
	return fmt.Sprintf("govee rate limited: %s (retry at %s)", e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Decision is the guard's verdict on one prospective call.
type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

// RateGuard tracks the vendor's advertised request budget.
//
// Until the first response carrying rate-limit headers, every call is
// allowed. Afterwards a call is refused while the remaining budget is at or
// below the floor and the window has not reset, or while a Retry-After
// cooldown is active.
type RateGuard struct {
	floor int

	mu        sync.Mutex
	remaining int // -1 until observed
	resetAt   time.Time
	cooldown  time.Time
	now       func() time.Time

	remainingGauge  prometheus.Gauge
	retryAfterGauge prometheus.Gauge
	lastStatusGauge prometheus.Gauge
	refused         *prometheus.CounterVec
}

// NewRateGuard creates a guard that holds calls once the remaining budget
// drops to floor.
func NewRateGuard(floor int) *RateGuard {
	return &RateGuard{
		floor:     floor,
		remaining: -1,
		now:       time.Now,
		remainingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govee2mqtt_rate_limit_remaining",
			Help: "Remaining vendor API requests in the current rate-limit window",
		}),
		retryAfterGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govee2mqtt_rate_limit_retry_after_seconds",
			Help: "Seconds until the vendor rate-limit cooldown ends",
		}),
		lastStatusGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govee2mqtt_rate_limit_last_status_code",
			Help: "Last HTTP status code observed by the rate guard",
		}),
		refused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govee2mqtt_rate_limit_refused_total",
			Help: "Vendor API calls held back by the rate guard",
		}, []string{"reason"}),
	}
}

// Collectors returns the guard's Prometheus collectors.
func (g *RateGuard) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		g.remainingGauge,
		g.retryAfterGauge,
		g.lastStatusGauge,
		g.refused,
	}
}

// Remaining returns the last observed budget, or -1 if none was seen.
func (g *RateGuard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// ShouldCall decides whether a call may go out now. An allowed call
// consumes one unit of the locally tracked budget.
func (g *RateGuard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() {
		if now.Before(g.cooldown) {
			g.refused.WithLabelValues("cooldown").Inc()
			return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
		}
		g.cooldown = time.Time{}
	}

	if g.remaining < 0 {
		return Decision{Allowed: true}
	}

	if !g.resetAt.IsZero() && !now.Before(g.resetAt) {
		// Window rolled over; trust the next response's headers.
		g.remaining = -1
		g.resetAt = time.Time{}
		return Decision{Allowed: true}
	}

	if g.remaining <= g.floor {
		g.refused.WithLabelValues("budget").Inc()
		return Decision{Allowed: false, Reason: "budget", RetryAt: g.resetAt}
	}
	g.remaining--
	return Decision{Allowed: true}
}

// RecordResponse updates the budget from one response's headers.
func (g *RateGuard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.lastStatusGauge.Set(float64(status))

	if remaining := firstHeaderInt(headers, headerRemaining, headerXRemaining); remaining >= 0 {
		g.remaining = remaining
		g.remainingGauge.Set(float64(remaining))
	}
	if reset := firstHeaderInt(headers, headerReset, headerXReset); reset > 0 {
		g.resetAt = resetTime(now, reset)
	}

	if retryAfter := firstHeaderInt(headers, headerRetryAfter); retryAfter > 0 {
		g.cooldown = now.Add(time.Duration(retryAfter) * time.Second)
	} else if status == http.StatusTooManyRequests {
		if g.resetAt.After(now) {
			g.cooldown = g.resetAt
		} else {
			g.cooldown = now.Add(defaultCooldown)
		}
	}

	if g.cooldown.After(now) {
		g.retryAfterGauge.Set(g.cooldown.Sub(now).Seconds())
	} else {
		g.retryAfterGauge.Set(0)
	}
}

// Wrap returns a RoundTripper that consults the guard before every request.
func (g *RateGuard) Wrap(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, guard: g}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *RateGuard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(rt.guard.now())
	if !decision.Allowed {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, RateLimitError{Reason: decision.Reason, RetryAt: decision.RetryAt}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// resetTime interprets a reset header as either a Unix timestamp or a
// number of seconds from now.
func resetTime(now time.Time, value int) time.Time {
	if value > 1_000_000_000 {
		return time.Unix(int64(value), 0)
	}
	return now.Add(time.Duration(value) * time.Second)
}

func firstHeaderInt(h http.Header, keys ...string) int {
	for _, key := range keys {
		val := h.Get(key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		return n
	}
	return -1
}
