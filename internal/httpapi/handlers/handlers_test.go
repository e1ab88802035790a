package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthguard/surveillance/internal/app"
	"github.com/healthguard/surveillance/internal/cache"
	"github.com/healthguard/surveillance/internal/config"
	"github.com/healthguard/surveillance/internal/email"
	"github.com/healthguard/surveillance/internal/httpapi/router"
	"github.com/healthguard/surveillance/internal/monitor"
	"github.com/healthguard/surveillance/internal/push"
	"github.com/healthguard/surveillance/internal/security/password"
	"github.com/healthguard/surveillance/internal/store/core"
	"github.com/healthguard/surveillance/internal/token"
)

// memStore is the in-memory double for the pg store, close enough in
// semantics for handler tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*core.ClientAccount
	settings map[string]*core.ClientSettings
	billing  map[string][]core.BillingRecord
	// usage is keyed account id, then day, so a second write on the same
	// day lands in the same row.
	usage    map[string]map[string]*core.UsageDay
	activity map[string][]core.Activity
	users    map[string]*core.User
	flags    map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*core.ClientAccount{},
		settings: map[string]*core.ClientSettings{},
		billing:  map[string][]core.BillingRecord{},
		usage:    map[string]map[string]*core.UsageDay{},
		activity: map[string][]core.Activity{},
		users:    map[string]*core.User{},
		flags:    map[string]bool{},
	}
}

func (m *memStore) appendActivity(accountID, action, resourceType, resourceID string) {
	m.activity[accountID] = append(m.activity[accountID], core.Activity{
		ID: uuid.NewString(), AccountID: accountID, Action: action,
		ResourceType: &resourceType, ResourceID: &resourceID,
		CreatedAt: time.Now(),
	})
}

func (m *memStore) CreateAccount(_ context.Context, acc *core.ClientAccount, _ core.ActivityMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, acc.Email) && a.Status != core.StatusCancelled {
			return core.ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	acc.ID = uuid.NewString()
	acc.Status = core.StatusPending
	acc.MonthlyRevenue = core.PricingFor(acc.Tier)
	acc.NextBillingDate = core.NextBillingDate(acc.BillingCycle, now)
	acc.CreatedAt, acc.UpdatedAt = now, now

	cp := *acc
	m.accounts[acc.ID] = &cp
	s := core.DefaultSettings(acc.ID, acc.Tier)
	m.settings[acc.ID] = &s
	m.billing[acc.ID] = []core.BillingRecord{{
		ID: uuid.NewString(), AccountID: acc.ID, Amount: acc.MonthlyRevenue,
		Currency: "USD", Cycle: acc.BillingCycle, Status: core.BillingPending,
		DueAt: acc.NextBillingDate, CreatedAt: now,
	}}
	m.appendActivity(acc.ID, "account.created", "account", acc.ID)
	return nil
}

func (m *memStore) ListAccounts(_ context.Context, f core.AccountFilter) ([]core.AccountWithUsage, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(f.Search)
	var matched []core.AccountWithUsage
	for _, a := range m.accounts {
		if f.Status == "" && a.Status == core.StatusCancelled {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Tier != "" && a.Tier != f.Tier {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.CompanyName), needle) &&
			!strings.Contains(strings.ToLower(a.Email), needle) &&
			!strings.Contains(strings.ToLower(a.ContactPerson), needle) {
			continue
		}
		matched = append(matched, core.AccountWithUsage{ClientAccount: *a})
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *memStore) GetAccount(_ context.Context, id string) (*core.ClientAccount, *core.UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	cp := *a
	sum := core.UsageSummary{}
	for _, d := range m.usage[id] {
		sum.Calls += d.Calls
		sum.Emails += d.Emails
		sum.SMS += d.SMS
		sum.TotalCost += d.TotalCost
	}
	return &cp, &sum, nil
}

func (m *memStore) UpdateAccount(_ context.Context, id string, patch core.AccountPatch, _ core.ActivityMeta) (*core.ClientAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	if patch.CompanyName != nil {
		a.CompanyName = *patch.CompanyName
	}
	if patch.Tier != nil {
		a.Tier = *patch.Tier
		a.MonthlyRevenue = core.PricingFor(a.Tier)
	}
	a.UpdatedAt = time.Now().UTC()
	m.appendActivity(id, "account.updated", "account", id)
	cp := *a
	return &cp, nil
}

func (m *memStore) SetAccountStatus(_ context.Context, id string, status core.AccountStatus, _ string, _ core.ActivityMeta) (*core.ClientAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	if !core.CanTransition(a.Status, status) {
		return nil, fmt.Errorf("%w: cannot move %s account to %s", core.ErrConflict, a.Status, status)
	}
	a.Status = status
	m.appendActivity(id, "account."+string(status), "account", id)
	cp := *a
	return &cp, nil
}

func (m *memStore) RecordUsage(_ context.Context, id string, ch core.Channel, count int64, cost float64, _ core.ActivityMeta) (*core.UsageDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return nil, core.ErrNotFound
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	key := today.Format("2006-01-02")
	if m.usage[id] == nil {
		m.usage[id] = map[string]*core.UsageDay{}
	}
	day, ok := m.usage[id][key]
	if !ok {
		day = &core.UsageDay{AccountID: id, Date: today}
		m.usage[id][key] = day
	}
	switch ch {
	case core.ChannelCalls:
		day.Calls += count
	case core.ChannelEmails:
		day.Emails += count
	case core.ChannelSMS:
		day.SMS += count
	case core.ChannelWhatsApp:
		day.WhatsApp += count
	case core.ChannelTelegram:
		day.Telegram += count
	case core.ChannelMessenger:
		day.Messenger += count
	case core.ChannelWebChat:
		day.WebChat += count
	case core.ChannelFax:
		day.Fax += count
	}
	day.TotalCost += cost

	m.appendActivity(id, "usage.recorded", "usage_daily", key)
	cp := *day
	return &cp, nil
}

func (m *memStore) ListUsage(_ context.Context, id string, _, _ time.Time) ([]core.UsageDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.UsageDay
	for _, d := range m.usage[id] {
		out = append(out, *d)
	}
	return out, nil
}

func (m *memStore) ListBilling(_ context.Context, id string) ([]core.BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.BillingRecord(nil), m.billing[id]...), nil
}

func (m *memStore) GetSettings(_ context.Context, id string) (*core.ClientSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSettings(_ context.Context, s *core.ClientSettings, _ core.ActivityMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[s.AccountID]; !ok {
		return core.ErrNotFound
	}
	cp := *s
	m.settings[s.AccountID] = &cp
	m.appendActivity(s.AccountID, "settings.updated", "client_settings", s.AccountID)
	return nil
}

func (m *memStore) Analytics(_ context.Context) (*core.Analytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &core.Analytics{
		ByStatus: map[core.AccountStatus]int{},
		ByTier:   map[core.SubscriptionTier]int{},
	}
	for _, acc := range m.accounts {
		a.TotalAccounts++
		a.ByStatus[acc.Status]++
		a.ByTier[acc.Tier]++
		if acc.Status == core.StatusActive {
			a.MonthlyRevenue += acc.MonthlyRevenue
		}
	}
	return a, nil
}

func (m *memStore) ListActivity(_ context.Context, id string, _ int) ([]core.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Activity(nil), m.activity[id]...), nil
}

func (m *memStore) CreateUser(_ context.Context, u *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if strings.EqualFold(x.Username, u.Username) || strings.EqualFold(x.Email, u.Email) {
			return fmt.Errorf("%w: username or email already in use", core.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) || strings.EqualFold(u.Email, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memStore) FeatureEnabled(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	on, ok := m.flags[slug]
	if !ok {
		return false, core.ErrNotFound
	}
	return on, nil
}

func (m *memStore) SetFeature(_ context.Context, slug string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[slug] = enabled
	return nil
}

// testEnv is one wired server with the seeded admin alice/s3cret.
type testEnv struct {
	store   *memStore
	handler http.Handler
	c       *app.Container
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()

	hash, err := password.Hash(password.Default, "s3cret")
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(context.Background(), &core.User{
		Username: "alice", Email: "alice@healthguard.local",
		PasswordHash: hash, Role: core.RoleAdmin, Active: true,
	}))

	cfg := &config.Config{}
	cfg.Tenancy.Gates = config.DefaultGates()

	health := monitor.NewHealthChecker()

	c := &app.Container{
		Cfg:       cfg,
		Accounts:  store,
		Users:     store,
		Flags:     store,
		Activity:  store,
		Tokens:    token.NewService("test-secret", 30*time.Minute, 7*24*time.Hour),
		Cache:     cache.New(nil, time.Minute),
		Collector: monitor.NewCollector(100),
		Health:    health,
		Push:      push.NewRegistry(),
		Notifier:  email.NewNotifier(email.Config{}),
	}
	return &testEnv{store: store, handler: router.New(c), c: c}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func login(t *testing.T, e *testEnv) (access, renewal string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	return body["access"].(string), body["renewal"].(string)
}

func TestLoginHappyPath(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, float64(1800), body["expires_in"])
	assert.NotEmpty(t, body["access"])
	assert.NotEmpty(t, body["renewal"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "admin", user["role"])
}

func TestLoginMissingFieldReportedAlone(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "username")
}

func TestLoginBadCredentials(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestLoginInactiveUser(t *testing.T) {
	e := newTestEnv(t)
	hash, _ := password.Hash(password.Default, "pw123456")
	require.NoError(t, e.store.CreateUser(context.Background(), &core.User{
		Username: "bob", Email: "bob@x.test", PasswordHash: hash,
		Role: core.RoleUser, Active: false,
	}))

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "bob", "password": "pw123456",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenRenewal(t *testing.T) {
	e := newTestEnv(t)
	_, renewal := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"renewal": renewal,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	payload, err := e.c.Tokens.Verify(body["access"].(string))
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.Subject)
	assert.Equal(t, token.KindAccess, payload.Kind)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"renewal": access,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordPersists(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/change-password", access, map[string]string{
		"current": "s3cret", "new": "evenm0resecret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Old password no longer works, new one does.
	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "s3cret",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "evenm0resecret",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/change-password", access, map[string]string{
		"current": "nope", "new": "evenm0resecret",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "current password is incorrect")
}

var acmeBody = map[string]any{
	"company_name":      "Acme",
	"email":             "a@acme.test",
	"phone":             "1",
	"contact_person":    "A",
	"subscription_tier": "professional",
	"billing_cycle":     "monthly",
	"max_users":         10,
}

func TestCreateAndGetClient(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[map[string]any](t, rec)
	assert.Equal(t, float64(99), created["monthly_revenue"])
	id := created["id"].(string)

	createdAt, err := time.Parse(time.RFC3339Nano, created["created_at"].(string))
	require.NoError(t, err)
	nextDue, err := time.Parse(time.RFC3339Nano, created["next_billing_date"].(string))
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, nextDue.Sub(createdAt))

	rec = e.do(t, http.MethodGet, "/api/v1/clients/"+id+"/", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "Acme", got["company_name"])
	usage := got["usage"].(map[string]any)
	assert.Equal(t, float64(0), usage["calls"])
	assert.Equal(t, float64(0), usage["total_cost"])
}

// seedClients creates one account per body and returns their ids.
func seedClients(t *testing.T, e *testEnv, access string, bodies ...map[string]any) []string {
	t.Helper()
	ids := make([]string, 0, len(bodies))
	for _, b := range bodies {
		rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, b)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[map[string]any](t, rec)["id"].(string))
	}
	return ids
}

func clientBody(company, email, tier string) map[string]any {
	return map[string]any{
		"company_name":      company,
		"email":             email,
		"phone":             "1",
		"contact_person":    "A",
		"subscription_tier": tier,
		"billing_cycle":     "monthly",
		"max_users":         5,
	}
}

func TestListClientsFilters(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	seedClients(t, e, access,
		clientBody("Acme Clinics", "ops@acme.test", "professional"),
		clientBody("Globex Health", "ops@globex.test", "basic"),
		clientBody("Initech Care", "ops@initech.test", "professional"),
	)

	// Empty search returns every non-cancelled row.
	rec := e.do(t, http.MethodGet, "/api/v1/clients/?search=", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["items"].([]any), 3)

	// Case-insensitive substring search over the company name.
	rec = e.do(t, http.MethodGet, "/api/v1/clients/?search=GLOBEX", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["total"])
	first := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "Globex Health", first["company_name"])

	// Tier filter.
	rec = e.do(t, http.MethodGet, "/api/v1/clients/?tier=professional", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["total"])

	// Paging beyond the total: empty page, total unchanged.
	rec = e.do(t, http.MethodGet, "/api/v1/clients/?offset=50", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, float64(3), body["total"])
	items, _ := body["items"].([]any)
	assert.Empty(t, items)
}

func TestDuplicateEmail(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	dup := map[string]any{}
	for k, v := range acmeBody {
		dup[k] = v
	}
	dup["company_name"] = "Acme Two"

	rec = e.do(t, http.MethodPost, "/api/v1/clients/", access, dup)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "email already registered", body["detail"])
}

func TestCancelledEmailReusable(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodDelete, "/api/v1/clients/"+id+"/", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The cancelled account no longer holds the email.
	rec = e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSuspendCancelledConflicts(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodDelete, "/api/v1/clients/"+id+"/", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/suspend", access, map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled")
}

func TestLifecycleActivateSuspend(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	// pending -> active -> suspended -> active
	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/activate", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "active", decode[map[string]any](t, rec)["status"])

	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/suspend", access, map[string]string{"reason": "billing"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "suspended", decode[map[string]any](t, rec)["status"])

	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/activate", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordUsageAndList(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/usage", access, map[string]any{
		"channel": "sms", "count": 5, "cost": 0.25,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	day := decode[map[string]any](t, rec)
	assert.Equal(t, float64(5), day["sms"])

	// A second write on the same day lands in the same row with summed
	// counters, not a duplicate (account, date) row.
	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/usage", access, map[string]any{
		"channel": "sms", "count": 3, "cost": 0.15,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	day = decode[map[string]any](t, rec)
	assert.Equal(t, float64(8), day["sms"])
	assert.InDelta(t, 0.40, day["total_cost"].(float64), 1e-9)

	rec = e.do(t, http.MethodGet, "/api/v1/clients/"+id+"/usage", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[map[string]any](t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(8), items[0].(map[string]any)["sms"])

	// Unknown channel is rejected before reaching the store.
	rec = e.do(t, http.MethodPost, "/api/v1/clients/"+id+"/usage", access, map[string]any{
		"channel": "pigeon", "count": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBillingSeededOnCreate(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodGet, "/api/v1/clients/"+id+"/billing", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[map[string]any](t, rec)["items"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "pending", first["status"])
	assert.Equal(t, float64(99), first["amount"])
}

func TestClientsRequireAdmin(t *testing.T) {
	e := newTestEnv(t)

	hash, _ := password.Hash(password.Default, "pw123456")
	require.NoError(t, e.store.CreateUser(context.Background(), &core.User{
		Username: "carol", Email: "carol@x.test", PasswordHash: hash,
		Role: core.RoleUser, Active: true,
	}))
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "carol", "password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	access := decode[map[string]any](t, rec)["access"].(string)

	rec = e.do(t, http.MethodGet, "/api/v1/clients/", access, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// No credential at all.
	rec = e.do(t, http.MethodGet, "/api/v1/clients/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMonitoringHealthAlwaysUp(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/monitoring/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "healthguard-surveillance", body["service"])
}

func TestAlertsDerivation(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	e.c.Collector.RecordSystemSample(monitor.SystemSample{CPUPercent: 95})
	e.c.Health.Register("database", func(ctx context.Context) (monitor.HealthStatus, error) {
		return monitor.StatusUnhealthy, fmt.Errorf("connection refused")
	})

	rec := e.do(t, http.MethodGet, "/api/v1/monitoring/alerts", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), body["count"])
	levels := map[string]int{}
	for _, a := range body["alerts"].([]any) {
		levels[a.(map[string]any)["level"].(string)]++
	}
	assert.Equal(t, 1, levels["warning"])
	assert.Equal(t, 1, levels["critical"])
}

func TestCacheClearEndpoint(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	e.c.Cache.Set(context.Background(), "clients:list:abc", "x", time.Minute)
	e.c.Cache.Set(context.Background(), "other:key", "y", time.Minute)

	rec := e.do(t, http.MethodPost, "/api/v1/monitoring/cache/clear?pattern=clients:*", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), body["cleared"])
}

func TestSettingsRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	rec := e.do(t, http.MethodPost, "/api/v1/clients/", access, acmeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = e.do(t, http.MethodGet, "/api/v1/clients/"+id+"/settings", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decode[core.ClientSettings](t, rec)
	assert.True(t, settings.WhatsAppEnabled) // professional tier default

	settings.BrandColor = "#ff0000"
	rec = e.do(t, http.MethodPut, "/api/v1/clients/"+id+"/settings", access, settings)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/clients/"+id+"/settings", access, nil)
	assert.Equal(t, "#ff0000", decode[core.ClientSettings](t, rec).BrandColor)
}

func TestActivityTrailCarriesResource(t *testing.T) {
	e := newTestEnv(t)
	access, _ := login(t, e)

	ids := seedClients(t, e, access, clientBody("Acme", "a@acme.test", "professional"))
	id := ids[0]

	rec := e.do(t, http.MethodGet, "/api/v1/clients/"+id+"/activity", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	items := decode[map[string]any](t, rec)["items"].([]any)
	require.NotEmpty(t, items)

	var created map[string]any
	for _, it := range items {
		entry := it.(map[string]any)
		if entry["action"] == "account.created" {
			created = entry
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "account", created["resource_type"])
	assert.Equal(t, id, created["resource_id"])
}

func TestRegisterDuplicateUsername(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "alice", "email": "other@x.test", "password": "pw123456",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPasswordUnknownUser(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]any{
		"username": "nobody", "email": "nobody@x.test", "new": "pw123456",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Right username, wrong email: still 404.
	rec = e.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]any{
		"username": "alice", "email": "wrong@x.test", "new": "pw123456",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatedModuleFailsClosed(t *testing.T) {
	e := newTestEnv(t)

	// analytics is gated and the flag store has no row for it, so the
	// gate answers before routing or auth get a say.
	rec := e.do(t, http.MethodGet, "/api/v1/analytics/reports", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}
