package monitor

import (
	"fmt"
	"time"
)

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

type Alert struct {
	Level   AlertLevel `json:"level"`
	Source  string     `json:"source"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Alert thresholds.
const (
	cpuWarnPercent    = 80
	memWarnPercent    = 85
	diskCritPercent   = 90
	errorCountTrigger = 10
	avgResponseWarnMs = 2000
)

// DeriveAlerts turns the latest system sample, the snapshot window and
// the probe results into the alert list served by the monitoring API.
func DeriveAlerts(latest SystemSample, haveSample bool, snap Snapshot, probes []ProbeResult) []Alert {
	now := time.Now()
	var alerts []Alert

	add := func(level AlertLevel, source, format string, args ...any) {
		alerts = append(alerts, Alert{
			Level:   level,
			Source:  source,
			Message: fmt.Sprintf(format, args...),
			At:      now,
		})
	}

	if haveSample {
		if latest.CPUPercent > cpuWarnPercent {
			add(AlertWarning, "system", "cpu usage at %.1f%%", latest.CPUPercent)
		}
		if latest.MemoryPercent > memWarnPercent {
			add(AlertWarning, "system", "memory usage at %.1f%%", latest.MemoryPercent)
		}
		if latest.DiskPercent > diskCritPercent {
			add(AlertCritical, "system", "disk usage at %.1f%%", latest.DiskPercent)
		}
	}

	if snap.ErrorCount > errorCountTrigger {
		add(AlertError, "application", "%d errors in the last %dh", snap.ErrorCount, snap.WindowHours)
	}
	if snap.Requests.AvgResponseMs > avgResponseWarnMs {
		add(AlertWarning, "application", "average response time %.0fms", snap.Requests.AvgResponseMs)
	}

	for _, p := range probes {
		switch p.Status {
		case StatusUnhealthy:
			add(AlertCritical, p.Service, "probe unhealthy: %s", p.Error)
		case StatusDegraded:
			add(AlertWarning, p.Service, "probe degraded: %s", p.Error)
		}
	}

	return alerts
}
