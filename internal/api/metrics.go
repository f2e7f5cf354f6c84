package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/dlashua/govee2mqtt/internal/bridge"
)

// checkTimeout bounds each component check.
const checkTimeout = 2 * time.Second

// HealthResponse is the /api/v1/health body.
type HealthResponse struct {
	Status        string               `json:"status"`
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Bridge        bridge.BridgeMetrics `json:"bridge"`
	Checks        map[string]string    `json:"checks,omitempty"`
	Runtime       RuntimeMetrics       `json:"runtime"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth reports "ok" with 200 while the bridge is running and
// connected and every component check passes, and "degraded" with 503
// otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	bm := s.bridge.GetMetrics()
	resp := HealthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Bridge:        bm,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	checks, healthy := s.runChecks(r.Context())
	resp.Checks = checks

	status := http.StatusOK
	if !healthy || bm.State != bridge.StateRunning.String() || !bm.Connected {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// runChecks runs every registered component check in name order.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	if len(s.checks) == 0 {
		return nil, true
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name].HealthCheck(checkCtx)
		cancel()

		if err != nil {
			results[name] = err.Error()
			healthy = false
			s.logger.Warn("health check failed", "component", name, "error", err)
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}
