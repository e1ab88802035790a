package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/healthguard/surveillance/internal/app"
	"github.com/healthguard/surveillance/internal/httpapi"
	"github.com/healthguard/surveillance/internal/monitor"
)

const serviceName = "healthguard-surveillance"

// NewHealthHandler is the liveness answer: 200 whenever the process can
// serve at all, regardless of dependency state.
func NewHealthHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// NewStatusHandler is the full operational snapshot: probe verdicts,
// latest system sample, request window, cache and connection state.
func NewStatusHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes := c.Health.PerformAll(r.Context())
		snap := c.Collector.TakeSnapshot(1)
		latest, haveSample := c.Collector.LatestSystemSample()

		body := map[string]any{
			"status":         monitor.Overall(probes),
			"service":        serviceName,
			"uptime_seconds": snap.UptimeSeconds,
			"checks":         probes,
			"requests":       snap.Requests,
			"cache":          c.Cache.Stats(r.Context()),
			"connections":    c.Push.Count(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		}
		if haveSample {
			body["system"] = latest
		}
		httpapi.WriteJSON(w, http.StatusOK, body)
	}
}

// NewMetricsSnapshotHandler aggregates the sample window. ?hours=N,
// default 24.
func NewMetricsSnapshotHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours, _ := strconv.Atoi(r.URL.Query().Get("hours"))
		httpapi.WriteJSON(w, http.StatusOK, c.Collector.TakeSnapshot(hours))
	}
}

// NewHealthChecksHandler runs every registered probe.
func NewHealthChecksHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes := c.Health.PerformAll(r.Context())
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"overall": monitor.Overall(probes),
			"checks":  probes,
		})
	}
}

// NewCacheStatsHandler reports both cache tiers.
func NewCacheStatsHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, c.Cache.Stats(r.Context()))
	}
}

// NewCacheClearHandler flushes keys matching ?pattern= (default "*").
func NewCacheClearHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			pattern = "*"
		}
		n := c.Cache.Clear(r.Context(), pattern)
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"pattern": pattern,
			"cleared": n,
		})
	}
}

// NewAlertsHandler derives the active alerts from the latest sample,
// the 24h window and a fresh probe run.
func NewAlertsHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, haveSample := c.Collector.LatestSystemSample()
		snap := c.Collector.TakeSnapshot(24)
		probes := c.Health.PerformAll(r.Context())

		alerts := monitor.DeriveAlerts(latest, haveSample, snap, probes)
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"alerts":    alerts,
			"count":     len(alerts),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
