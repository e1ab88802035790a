package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusUnknown   HealthStatus = "unknown"
)

// rank orders statuses worst-first for the overall verdict.
func rank(s HealthStatus) int {
	switch s {
	case StatusUnhealthy:
		return 3
	case StatusDegraded:
		return 2
	case StatusHealthy:
		return 1
	}
	return 0
}

// Probe checks one dependency. It reports its own status; probes that
// only know pass/fail return StatusUnhealthy with the error.
type Probe func(ctx context.Context) (HealthStatus, error)

// ProbeResult is the outcome of one probe run. Errors are captured into
// the result, never raised.
type ProbeResult struct {
	Service   string       `json:"service"`
	Status    HealthStatus `json:"status"`
	ElapsedMs float64      `json:"elapsed_ms"`
	Error     string       `json:"error,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// probeTimeout bounds every probe run.
const probeTimeout = 5 * time.Second

// HealthChecker holds a named map of probes.
type HealthChecker struct {
	mu     sync.Mutex
	probes map[string]Probe
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{probes: make(map[string]Probe)}
}

func (h *HealthChecker) Register(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// PerformAll runs every registered probe with a 5-second deadline each
// and returns results sorted by service name.
func (h *HealthChecker) PerformAll(ctx context.Context) []ProbeResult {
	h.mu.Lock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	results := make([]ProbeResult, 0, len(probes))
	for name, p := range probes {
		results = append(results, runProbe(ctx, name, p))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Service < results[j].Service })
	return results
}

func runProbe(ctx context.Context, name string, p Probe) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	status, err := p(probeCtx)
	res := ProbeResult{
		Service:   name,
		Status:    status,
		ElapsedMs: float64(time.Since(start).Microseconds()) / 1000,
		CheckedAt: time.Now(),
	}
	if err != nil {
		res.Error = err.Error()
		if rank(res.Status) < rank(StatusUnhealthy) && res.Status != StatusDegraded {
			res.Status = StatusUnhealthy
		}
	}
	if res.Status == "" {
		res.Status = StatusUnknown
	}
	return res
}

// Overall is the worst status across results; no results means unknown.
func Overall(results []ProbeResult) HealthStatus {
	overall := StatusUnknown
	for _, r := range results {
		if rank(r.Status) > rank(overall) {
			overall = r.Status
		}
	}
	if overall == StatusUnknown && len(results) > 0 {
		return StatusUnknown
	}
	return overall
}

// Pinger is anything with a Ping, e.g. the pg store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseProbe executes the store's trivial ping query.
func DatabaseProbe(db Pinger) Probe {
	return func(ctx context.Context) (HealthStatus, error) {
		if err := db.Ping(ctx); err != nil {
			return StatusUnhealthy, err
		}
		return StatusHealthy, nil
	}
}

// CacheHealther matches the cache facade's sentinel cycle.
type CacheHealther interface {
	Healthy(ctx context.Context) error
}

// CacheProbe runs the facade's set/get/delete sentinel.
func CacheProbe(c CacheHealther) Probe {
	return func(ctx context.Context) (HealthStatus, error) {
		if err := c.Healthy(ctx); err != nil {
			return StatusUnhealthy, err
		}
		return StatusHealthy, nil
	}
}

// ExternalProbe GETs a known status endpoint. Connection failure is
// unhealthy; a non-2xx answer means reachable but degraded.
func ExternalProbe(url string, client *http.Client) Probe {
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	return func(ctx context.Context) (HealthStatus, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return StatusUnknown, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return StatusUnhealthy, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return StatusDegraded, fmt.Errorf("status %d", resp.StatusCode)
		}
		return StatusHealthy, nil
	}
}
