// Package monitor keeps process-local observability state: rolling
// windows of system/application/request samples, pluggable health
// probes, and threshold-derived alerts.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the ring-buffer size for each sample kind.
const DefaultCapacity = 1000

// appWindow is how many trailing request samples feed an application
// sample's derived statistics.
const appWindow = 100

type RequestSample struct {
	At         time.Time     `json:"at"`
	Elapsed    time.Duration `json:"elapsed_ms"`
	StatusCode int           `json:"status_code"`
}

type ErrorRecord struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Context string    `json:"context"`
}

type SystemSample struct {
	At            time.Time `json:"at"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	// Network byte counters relative to the baseline recorded at
	// process start.
	NetSentBytes  uint64  `json:"net_sent_bytes"`
	NetRecvBytes  uint64  `json:"net_recv_bytes"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type AppSample struct {
	At            time.Time `json:"at"`
	RequestCount  int       `json:"request_count"`
	ErrorCount    int       `json:"error_count"`
	AvgResponseMs float64   `json:"avg_response_ms"`
	P95ResponseMs float64   `json:"p95_response_ms"`
	P99ResponseMs float64   `json:"p99_response_ms"`
}

// Collector owns three fixed-capacity ring buffers plus the error log.
// One mutex serialises every mutation; readers get copied-out snapshots
// so no formatting happens under the lock.
type Collector struct {
	mu        sync.Mutex
	capacity  int
	system    []SystemSample
	app       []AppSample
	requests  []RequestSample
	errors    []ErrorRecord
	startedAt time.Time
	now       func() time.Time
}

func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Collector{
		capacity:  capacity,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// push appends to a ring slice, dropping the oldest entry at capacity.
func push[T any](buf []T, capacity int, v T) []T {
	if len(buf) >= capacity {
		copy(buf, buf[1:])
		buf[len(buf)-1] = v
		return buf
	}
	return append(buf, v)
}

// RecordRequest notes one served request.
func (c *Collector) RecordRequest(elapsed time.Duration, statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = push(c.requests, c.capacity, RequestSample{
		At:         c.now(),
		Elapsed:    elapsed,
		StatusCode: statusCode,
	})
}

// RecordError notes one application error.
func (c *Collector) RecordError(kind, context string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = push(c.errors, c.capacity, ErrorRecord{
		At:      c.now(),
		Kind:    kind,
		Context: context,
	})
}

// RecordSystemSample stores a system sample and derives an application
// sample from the most recent request window at the same instant.
func (c *Collector) RecordSystemSample(s SystemSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.At.IsZero() {
		s.At = c.now()
	}
	s.UptimeSeconds = s.At.Sub(c.startedAt).Seconds()
	c.system = push(c.system, c.capacity, s)
	c.app = push(c.app, c.capacity, c.deriveAppSampleLocked(s.At))
}

// deriveAppSampleLocked summarises the trailing request window. Caller
// holds the mutex.
func (c *Collector) deriveAppSampleLocked(at time.Time) AppSample {
	window := c.requests
	if len(window) > appWindow {
		window = window[len(window)-appWindow:]
	}

	sample := AppSample{At: at, RequestCount: len(window)}
	if len(window) == 0 {
		return sample
	}

	ms := make([]float64, len(window))
	for i, r := range window {
		ms[i] = float64(r.Elapsed.Milliseconds())
		if r.StatusCode >= 500 {
			sample.ErrorCount++
		}
	}
	sort.Float64s(ms)

	var sum float64
	for _, v := range ms {
		sum += v
	}
	sample.AvgResponseMs = sum / float64(len(ms))
	sample.P95ResponseMs = percentile(ms, 0.95)
	sample.P99ResponseMs = percentile(ms, 0.99)
	return sample
}

// percentile indexes a sorted ascending window by ⌊n·p⌋, clamped.
// An empty window yields zero.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot aggregates every sample within the trailing window.
type Snapshot struct {
	WindowHours   int       `json:"window_hours"`
	GeneratedAt   time.Time `json:"generated_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`

	System struct {
		Samples   int     `json:"samples"`
		AvgCPU    float64 `json:"avg_cpu_percent"`
		AvgMemory float64 `json:"avg_memory_percent"`
		AvgDisk   float64 `json:"avg_disk_percent"`
	} `json:"system"`

	Requests struct {
		Count         int     `json:"count"`
		Errors        int     `json:"errors"`
		AvgResponseMs float64 `json:"avg_response_ms"`
		P95ResponseMs float64 `json:"p95_response_ms"`
		P99ResponseMs float64 `json:"p99_response_ms"`
	} `json:"requests"`

	ErrorCount int           `json:"error_count"`
	Errors     []ErrorRecord `json:"recent_errors"`
}

// TakeSnapshot copies the relevant samples out under the lock and
// aggregates after releasing it.
func (c *Collector) TakeSnapshot(hours int) Snapshot {
	if hours <= 0 {
		hours = 24
	}
	now := c.now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	c.mu.Lock()
	system := append([]SystemSample(nil), c.system...)
	requests := append([]RequestSample(nil), c.requests...)
	errs := append([]ErrorRecord(nil), c.errors...)
	started := c.startedAt
	c.mu.Unlock()

	snap := Snapshot{
		WindowHours:   hours,
		GeneratedAt:   now,
		UptimeSeconds: now.Sub(started).Seconds(),
	}

	var cpu, mem, disk float64
	for _, s := range system {
		if s.At.Before(cutoff) {
			continue
		}
		snap.System.Samples++
		cpu += s.CPUPercent
		mem += s.MemoryPercent
		disk += s.DiskPercent
	}
	if snap.System.Samples > 0 {
		n := float64(snap.System.Samples)
		snap.System.AvgCPU = cpu / n
		snap.System.AvgMemory = mem / n
		snap.System.AvgDisk = disk / n
	}

	var ms []float64
	for _, r := range requests {
		if r.At.Before(cutoff) {
			continue
		}
		snap.Requests.Count++
		if r.StatusCode >= 500 {
			snap.Requests.Errors++
		}
		ms = append(ms, float64(r.Elapsed.Milliseconds()))
	}
	if len(ms) > 0 {
		sort.Float64s(ms)
		var sum float64
		for _, v := range ms {
			sum += v
		}
		snap.Requests.AvgResponseMs = sum / float64(len(ms))
		snap.Requests.P95ResponseMs = percentile(ms, 0.95)
		snap.Requests.P99ResponseMs = percentile(ms, 0.99)
	}

	for _, e := range errs {
		if e.At.Before(cutoff) {
			continue
		}
		snap.ErrorCount++
	}
	// Most recent errors last; cap the echo at 20 records.
	for i := len(errs) - 1; i >= 0 && len(snap.Errors) < 20; i-- {
		if !errs[i].At.Before(cutoff) {
			snap.Errors = append(snap.Errors, errs[i])
		}
	}

	return snap
}

// LatestSystemSample returns the newest system sample, if any.
func (c *Collector) LatestSystemSample() (SystemSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.system) == 0 {
		return SystemSample{}, false
	}
	return c.system[len(c.system)-1], true
}
