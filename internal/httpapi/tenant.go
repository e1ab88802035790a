package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
	"github.com/healthguard/surveillance/internal/store/core"
)

type ctxKey int

const (
	ctxKeyTenant ctxKey = iota
	ctxKeyPayload
)

// TenantFromContext returns the resolved tenant slug, possibly empty.
func TenantFromContext(ctx context.Context) string {
	t, _ := ctx.Value(ctxKeyTenant).(string)
	return t
}

// WithTenant resolves the tenant: the configured header wins, otherwise
// the leftmost host label unless it is www or api. Resolution never
// fails; requests without a tenant proceed with an empty slug.
func WithTenant(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-Tenant-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := strings.TrimSpace(r.Header.Get(header))
			if tenant == "" {
				tenant = tenantFromHost(r.Host)
			}
			ctx := context.WithValue(r.Context(), ctxKeyTenant, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	first := strings.ToLower(labels[0])
	if first == "www" || first == "api" {
		return ""
	}
	return first
}

// WithFeatureGate guards the versioned API: when the first path segment
// maps to a feature slug, the flag must exist and be enabled. Missing
// flags, disabled flags and lookup failures all answer 404 so gated
// modules are indistinguishable from absent ones.
func WithFeatureGate(gates map[string]string, flags core.FlagStore) func(http.Handler) http.Handler {
	log := logger.Named("http.gate")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seg := firstSegment(r.URL.Path)
			slug, gated := gates[seg]
			if !gated {
				next.ServeHTTP(w, r)
				return
			}

			enabled, err := flags.FeatureEnabled(r.Context(), slug)
			if err != nil || !enabled {
				if err != nil {
					log.Warn("gate lookup failed", zap.String("slug", slug), zap.Error(err))
				}
				WriteDetail(w, http.StatusNotFound, "Not Found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// firstSegment extracts the leading path segment below the mount point.
func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/api/v1")
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
