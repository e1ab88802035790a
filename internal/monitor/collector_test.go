package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.95))

	window := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	assert.Equal(t, float64(60), percentile(window, 0.5))
	assert.Equal(t, float64(100), percentile(window, 0.95))
	assert.Equal(t, float64(100), percentile(window, 0.99))

	one := []float64{42}
	assert.Equal(t, float64(42), percentile(one, 0.99))
}

func TestRingBufferCapacity(t *testing.T) {
	c := NewCollector(3)
	for i := 0; i < 5; i++ {
		c.RecordRequest(time.Duration(i)*time.Millisecond, 200)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.requests, 3)
	// Oldest two dropped.
	assert.Equal(t, 2*time.Millisecond, c.requests[0].Elapsed)
	assert.Equal(t, 4*time.Millisecond, c.requests[2].Elapsed)
}

func TestSnapshotAggregates(t *testing.T) {
	c := NewCollector(100)
	c.RecordRequest(100*time.Millisecond, 200)
	c.RecordRequest(200*time.Millisecond, 200)
	c.RecordRequest(300*time.Millisecond, 503)
	c.RecordError("internal", "boom")

	snap := c.TakeSnapshot(24)
	assert.Equal(t, 3, snap.Requests.Count)
	assert.Equal(t, 1, snap.Requests.Errors)
	assert.InDelta(t, 200, snap.Requests.AvgResponseMs, 0.001)
	assert.Equal(t, 1, snap.ErrorCount)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "internal", snap.Errors[0].Kind)
}

func TestSnapshotWindowExcludesOldSamples(t *testing.T) {
	c := NewCollector(100)
	base := time.Now()

	c.now = func() time.Time { return base.Add(-2 * time.Hour) }
	c.RecordRequest(50*time.Millisecond, 200)

	c.now = func() time.Time { return base }
	c.RecordRequest(150*time.Millisecond, 200)

	snap := c.TakeSnapshot(1)
	assert.Equal(t, 1, snap.Requests.Count)
	assert.InDelta(t, 150, snap.Requests.AvgResponseMs, 0.001)
}

func TestSnapshotEmpty(t *testing.T) {
	c := NewCollector(10)
	snap := c.TakeSnapshot(24)
	assert.Zero(t, snap.Requests.Count)
	assert.Zero(t, snap.Requests.AvgResponseMs)
	assert.Zero(t, snap.Requests.P95ResponseMs)
}

func TestSystemSampleDerivesAppSample(t *testing.T) {
	c := NewCollector(100)
	c.RecordRequest(100*time.Millisecond, 200)
	c.RecordRequest(300*time.Millisecond, 500)

	c.RecordSystemSample(SystemSample{CPUPercent: 10})

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.app, 1)
	app := c.app[0]
	assert.Equal(t, 2, app.RequestCount)
	assert.Equal(t, 1, app.ErrorCount)
	assert.InDelta(t, 200, app.AvgResponseMs, 0.001)
}

func TestDeriveAlerts(t *testing.T) {
	snap := Snapshot{WindowHours: 24}
	probes := []ProbeResult{
		{Service: "database", Status: StatusUnhealthy, Error: "down"},
		{Service: "cache", Status: StatusHealthy},
	}

	alerts := DeriveAlerts(SystemSample{CPUPercent: 95}, true, snap, probes)
	require.Len(t, alerts, 2)

	byLevel := map[AlertLevel]int{}
	for _, a := range alerts {
		byLevel[a.Level]++
	}
	assert.Equal(t, 1, byLevel[AlertWarning])
	assert.Equal(t, 1, byLevel[AlertCritical])
}

func TestDeriveAlertsThresholds(t *testing.T) {
	snap := Snapshot{WindowHours: 24, ErrorCount: 11}
	snap.Requests.AvgResponseMs = 2500

	alerts := DeriveAlerts(SystemSample{MemoryPercent: 90, DiskPercent: 95}, true, snap, nil)
	require.Len(t, alerts, 4)

	byLevel := map[AlertLevel]int{}
	for _, a := range alerts {
		byLevel[a.Level]++
	}
	assert.Equal(t, 2, byLevel[AlertWarning]) // memory + response time
	assert.Equal(t, 1, byLevel[AlertCritical])
	assert.Equal(t, 1, byLevel[AlertError])
}

func TestHealthCheckerOverall(t *testing.T) {
	h := NewHealthChecker()
	h.Register("ok", func(ctx context.Context) (HealthStatus, error) {
		return StatusHealthy, nil
	})
	h.Register("slow", func(ctx context.Context) (HealthStatus, error) {
		return StatusDegraded, errors.New("lagging")
	})

	results := h.PerformAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusDegraded, Overall(results))

	h.Register("down", func(ctx context.Context) (HealthStatus, error) {
		return StatusUnhealthy, errors.New("refused")
	})
	assert.Equal(t, StatusUnhealthy, Overall(h.PerformAll(context.Background())))
}

func TestProbeErrorCaptured(t *testing.T) {
	h := NewHealthChecker()
	h.Register("db", func(ctx context.Context) (HealthStatus, error) {
		return StatusUnhealthy, errors.New("connection refused")
	})
	results := h.PerformAll(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "connection refused", results[0].Error)
	assert.False(t, results[0].CheckedAt.IsZero())
}
