package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthguard/surveillance/internal/store/core"
	"github.com/healthguard/surveillance/internal/token"
)

func TestTenantFromHeader(t *testing.T) {
	var got string
	h := WithTenant("X-Tenant-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TenantFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "http://api.healthguard.io/api/v1/clients", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "acme", got)
}

func TestTenantFromHost(t *testing.T) {
	cases := []struct {
		host, want string
	}{
		{"acme.healthguard.io", "acme"},
		{"acme.healthguard.io:8080", "acme"},
		{"www.healthguard.io", ""},
		{"api.healthguard.io", ""},
		{"localhost", ""},
		{"healthguard.io", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tenantFromHost(tc.host), tc.host)
	}
}

func TestHeaderWinsOverHost(t *testing.T) {
	var got string
	h := WithTenant("X-Tenant-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TenantFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "http://acme.healthguard.io/", nil)
	req.Header.Set("X-Tenant-ID", "globex")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "globex", got)
}

type fakeFlags struct {
	flags map[string]bool
	err   error
}

func (f *fakeFlags) FeatureEnabled(_ context.Context, slug string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	on, ok := f.flags[slug]
	if !ok {
		return false, core.ErrNotFound
	}
	return on, nil
}

func (f *fakeFlags) SetFeature(_ context.Context, slug string, enabled bool) error {
	f.flags[slug] = enabled
	return nil
}

func gateRequest(t *testing.T, flags core.FlagStore, path string) *httptest.ResponseRecorder {
	t.Helper()
	gates := map[string]string{"analytics": "analytics"}
	h := WithFeatureGate(gates, flags)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestFeatureGate(t *testing.T) {
	flags := &fakeFlags{flags: map[string]bool{"analytics": true}}
	assert.Equal(t, http.StatusOK, gateRequest(t, flags, "/api/v1/analytics/reports").Code)

	flags.flags["analytics"] = false
	assert.Equal(t, http.StatusNotFound, gateRequest(t, flags, "/api/v1/analytics/reports").Code)

	// Missing flag fails closed.
	rec := gateRequest(t, &fakeFlags{flags: map[string]bool{}}, "/api/v1/analytics/reports")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Lookup error fails closed.
	rec = gateRequest(t, &fakeFlags{err: errors.New("db down")}, "/api/v1/analytics/reports")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Ungated segments pass through.
	assert.Equal(t, http.StatusOK, gateRequest(t, &fakeFlags{flags: map[string]bool{}}, "/api/v1/clients").Code)
}

func issueFor(t *testing.T, svc *token.Service, u *core.User) token.Pair {
	t.Helper()
	pair, err := svc.Issue(u)
	require.NoError(t, err)
	return pair
}

func TestRequireAuth(t *testing.T) {
	svc := token.NewService("secret", 30*time.Minute, 7*24*time.Hour)
	h := RequireAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PayloadFromContext(r.Context())
		require.NotNil(t, p)
		w.WriteHeader(http.StatusOK)
	}))

	// Missing credential.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage credential.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	u := &core.User{ID: "u1", Username: "alice", Role: core.RoleAdmin, Active: true}
	pair := issueFor(t, svc, u)

	// Renewal token is not an access credential.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Renewal)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid access token.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func scopedRequest(t *testing.T, svc *token.Service, u *core.User, accountID string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/clients/{id}", func(cr chi.Router) {
		cr.Use(RequireAuth(svc), RequireAccountScope)
		cr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	pair := issueFor(t, svc, u)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/clients/"+accountID+"/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	r.ServeHTTP(rec, req)
	return rec
}

func TestAccountScope(t *testing.T) {
	svc := token.NewService("secret", 30*time.Minute, 7*24*time.Hour)
	acc := "acc-1"

	admin := &core.User{ID: "u1", Username: "alice", Role: core.RoleAdmin, Active: true}
	assert.Equal(t, http.StatusOK, scopedRequest(t, svc, admin, acc).Code)

	owner := &core.User{ID: "u2", Username: "bob", Role: core.RoleClient, AccountID: &acc, Active: true}
	assert.Equal(t, http.StatusOK, scopedRequest(t, svc, owner, acc).Code)

	other := "acc-2"
	stranger := &core.User{ID: "u3", Username: "eve", Role: core.RoleClient, AccountID: &other, Active: true}
	assert.Equal(t, http.StatusForbidden, scopedRequest(t, svc, stranger, acc).Code)

	plain := &core.User{ID: "u4", Username: "mallory", Role: core.RoleUser, Active: true}
	assert.Equal(t, http.StatusForbidden, scopedRequest(t, svc, plain, acc).Code)
}

func TestRequireAdmin(t *testing.T) {
	svc := token.NewService("secret", 30*time.Minute, 7*24*time.Hour)
	h := RequireAuth(svc)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	client := &core.User{ID: "u1", Username: "bob", Role: core.RoleClient, Active: true}
	pair := issueFor(t, svc, client)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
