package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/healthguard/surveillance/internal/app"
	"github.com/healthguard/surveillance/internal/cache"
	"github.com/healthguard/surveillance/internal/httpapi"
	"github.com/healthguard/surveillance/internal/push"
	"github.com/healthguard/surveillance/internal/store/core"
)

const (
	accountCacheTTL = 60 * time.Second
	listCacheTTL    = 30 * time.Second
)

// activityMeta builds the audit context for a mutation from the request.
func activityMeta(r *http.Request) core.ActivityMeta {
	meta := core.ActivityMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		meta.IPAddress = strings.TrimSpace(strings.Split(xf, ",")[0])
	}
	if p := httpapi.PayloadFromContext(r.Context()); p != nil {
		id := p.UserID
		meta.ActorID = &id
	}
	return meta
}

// invalidateClients drops every cached client read after a mutation.
func invalidateClients(r *http.Request, c *app.Container) {
	c.Cache.Clear(r.Context(), "clients:*")
}

type createClientRequest struct {
	CompanyName   string                `json:"company_name"`
	Email         string                `json:"email"`
	Phone         string                `json:"phone"`
	ContactPerson string                `json:"contact_person"`
	Address       *string               `json:"address"`
	Tier          core.SubscriptionTier `json:"subscription_tier"`
	BillingCycle  core.BillingCycle     `json:"billing_cycle"`
	MaxUsers      int                   `json:"max_users"`
	CustomDomain  *string               `json:"custom_domain"`
	Notes         string                `json:"notes"`
}

func (req *createClientRequest) validate() []httpapi.FieldError {
	var fields []httpapi.FieldError
	if strings.TrimSpace(req.CompanyName) == "" {
		fields = append(fields, httpapi.FieldError{Field: "company_name", Message: "required"})
	}
	if !strings.Contains(req.Email, "@") {
		fields = append(fields, httpapi.FieldError{Field: "email", Message: "must be a valid email"})
	}
	if !req.Tier.Valid() {
		fields = append(fields, httpapi.FieldError{Field: "subscription_tier", Message: "must be basic, professional or enterprise"})
	}
	if !req.BillingCycle.Valid() {
		fields = append(fields, httpapi.FieldError{Field: "billing_cycle", Message: "must be monthly, quarterly or yearly"})
	}
	if req.MaxUsers < 0 {
		fields = append(fields, httpapi.FieldError{Field: "max_users", Message: "must not be negative"})
	}
	return fields
}

// NewCreateClientHandler onboards an account: insert, default settings,
// first pending invoice, then the side effects (cache bust, push, mail).
func NewCreateClientHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createClientRequest
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}
		if fields := req.validate(); len(fields) > 0 {
			httpapi.WriteDetail(w, http.StatusBadRequest, fields)
			return
		}
		if req.MaxUsers == 0 {
			req.MaxUsers = 5
		}

		acc := &core.ClientAccount{
			CompanyName:   strings.TrimSpace(req.CompanyName),
			Email:         strings.ToLower(strings.TrimSpace(req.Email)),
			Phone:         req.Phone,
			ContactPerson: req.ContactPerson,
			Address:       req.Address,
			Tier:          req.Tier,
			BillingCycle:  req.BillingCycle,
			MaxUsers:      req.MaxUsers,
			CustomDomain:  req.CustomDomain,
			Notes:         req.Notes,
		}
		if err := c.Accounts.CreateAccount(r.Context(), acc, activityMeta(r)); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}

		invalidateClients(r, c)
		c.Push.Broadcast(push.RealtimeUpdate("clients", acc))
		c.Notifier.AccountCreated(acc)

		httpapi.WriteJSON(w, http.StatusCreated, acc)
	}
}

// NewListClientsHandler serves the filtered, paged account list with
// usage summaries, cached briefly per filter combination.
func NewListClientsHandler(c *app.Container) http.HandlerFunc {
	type listResponse struct {
		Items  []core.AccountWithUsage `json:"items"`
		Total  int                     `json:"total"`
		Limit  int                     `json:"limit"`
		Offset int                     `json:"offset"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := core.AccountFilter{
			Search: q.Get("search"),
			Status: core.AccountStatus(q.Get("status")),
			Tier:   core.SubscriptionTier(q.Get("tier")),
		}
		f.Limit, _ = strconv.Atoi(q.Get("limit"))
		f.Offset, _ = strconv.Atoi(q.Get("offset"))
		if f.Limit <= 0 || f.Limit > 100 {
			f.Limit = 20
		}
		if f.Offset < 0 {
			f.Offset = 0
		}

		key := cache.Key("clients:list", []any{f.Search, f.Status, f.Tier, f.Limit, f.Offset}, nil)
		var resp listResponse
		if c.Cache.Get(r.Context(), key, &resp) {
			httpapi.WriteJSON(w, http.StatusOK, resp)
			return
		}

		items, total, err := c.Accounts.ListAccounts(r.Context(), f)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		resp = listResponse{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}
		c.Cache.Set(r.Context(), key, resp, listCacheTTL)
		httpapi.WriteJSON(w, http.StatusOK, resp)
	}
}

type accountWithUsageBody struct {
	core.ClientAccount
	Usage core.UsageSummary `json:"usage"`
}

// NewGetClientHandler serves one account with its usage summary.
func NewGetClientHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		key := cache.Key("clients:get", []any{id}, nil)
		var body accountWithUsageBody
		if c.Cache.Get(r.Context(), key, &body) {
			httpapi.WriteJSON(w, http.StatusOK, body)
			return
		}

		acc, usage, err := c.Accounts.GetAccount(r.Context(), id)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		body = accountWithUsageBody{ClientAccount: *acc, Usage: *usage}
		c.Cache.Set(r.Context(), key, body, accountCacheTTL)
		httpapi.WriteJSON(w, http.StatusOK, body)
	}
}

// NewUpdateClientHandler applies a partial update.
func NewUpdateClientHandler(c *app.Container) http.HandlerFunc {
	type updateRequest struct {
		CompanyName   *string                `json:"company_name"`
		Email         *string                `json:"email"`
		Phone         *string                `json:"phone"`
		ContactPerson *string                `json:"contact_person"`
		Address       *string                `json:"address"`
		Tier          *core.SubscriptionTier `json:"subscription_tier"`
		BillingCycle  *core.BillingCycle     `json:"billing_cycle"`
		MaxUsers      *int                   `json:"max_users"`
		CustomDomain  *string                `json:"custom_domain"`
		Notes         *string                `json:"notes"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}

		var fields []httpapi.FieldError
		if req.Tier != nil && !req.Tier.Valid() {
			fields = append(fields, httpapi.FieldError{Field: "subscription_tier", Message: "must be basic, professional or enterprise"})
		}
		if req.BillingCycle != nil && !req.BillingCycle.Valid() {
			fields = append(fields, httpapi.FieldError{Field: "billing_cycle", Message: "must be monthly, quarterly or yearly"})
		}
		if req.Email != nil && !strings.Contains(*req.Email, "@") {
			fields = append(fields, httpapi.FieldError{Field: "email", Message: "must be a valid email"})
		}
		if len(fields) > 0 {
			httpapi.WriteDetail(w, http.StatusBadRequest, fields)
			return
		}

		patch := core.AccountPatch{
			CompanyName:   req.CompanyName,
			Email:         req.Email,
			Phone:         req.Phone,
			ContactPerson: req.ContactPerson,
			Address:       req.Address,
			Tier:          req.Tier,
			BillingCycle:  req.BillingCycle,
			MaxUsers:      req.MaxUsers,
			CustomDomain:  req.CustomDomain,
			Notes:         req.Notes,
		}
		acc, err := c.Accounts.UpdateAccount(r.Context(), chi.URLParam(r, "id"), patch, activityMeta(r))
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}

		invalidateClients(r, c)
		c.Push.SendAccount(acc.ID, push.RealtimeUpdate("clients", acc))
		httpapi.WriteJSON(w, http.StatusOK, acc)
	}
}

// NewDeleteClientHandler soft-deletes: the account moves to cancelled
// and disappears from default listings.
func NewDeleteClientHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := c.Accounts.SetAccountStatus(r.Context(), chi.URLParam(r, "id"),
			core.StatusCancelled, "cancelled via API", activityMeta(r))
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		invalidateClients(r, c)
		c.Push.SendAccount(acc.ID, push.Notification(map[string]any{
			"message": "account cancelled",
		}))
		httpapi.WriteJSON(w, http.StatusOK, acc)
	}
}

// NewSuspendClientHandler moves an active account to suspended.
func NewSuspendClientHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength > 0 && !httpapi.ReadJSON(w, r, &req) {
			return
		}

		acc, err := c.Accounts.SetAccountStatus(r.Context(), chi.URLParam(r, "id"),
			core.StatusSuspended, req.Reason, activityMeta(r))
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}

		invalidateClients(r, c)
		c.Push.SendAccount(acc.ID, push.Notification(map[string]any{
			"message": "account suspended",
			"reason":  req.Reason,
		}))
		c.Notifier.AccountSuspended(acc, req.Reason)
		httpapi.WriteJSON(w, http.StatusOK, acc)
	}
}

// NewActivateClientHandler activates a pending or suspended account.
func NewActivateClientHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := c.Accounts.SetAccountStatus(r.Context(), chi.URLParam(r, "id"),
			core.StatusActive, "", activityMeta(r))
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}

		invalidateClients(r, c)
		c.Push.SendAccount(acc.ID, push.Notification(map[string]any{
			"message": "account activated",
		}))
		c.Notifier.AccountReactivated(acc)
		httpapi.WriteJSON(w, http.StatusOK, acc)
	}
}

// NewListUsageHandler returns the per-day usage rows in a date range.
func NewListUsageHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		from, to, err := parseDateRange(r)
		if err != nil {
			httpapi.WriteDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		// The account must exist even when it has no usage yet.
		if _, _, err := c.Accounts.GetAccount(r.Context(), id); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		days, err := c.Accounts.ListUsage(r.Context(), id, from, to)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": days})
	}
}

// NewRecordUsageHandler increments one channel counter for today.
func NewRecordUsageHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Channel core.Channel `json:"channel"`
			Count   int64        `json:"count"`
			Cost    float64      `json:"cost"`
		}
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}
		if !req.Channel.Valid() {
			httpapi.WriteDetail(w, http.StatusBadRequest, []httpapi.FieldError{
				{Field: "channel", Message: "unknown channel"},
			})
			return
		}
		if req.Count <= 0 {
			httpapi.WriteDetail(w, http.StatusBadRequest, []httpapi.FieldError{
				{Field: "count", Message: "must be positive"},
			})
			return
		}

		id := chi.URLParam(r, "id")
		day, err := c.Accounts.RecordUsage(r.Context(), id, req.Channel, req.Count, req.Cost, activityMeta(r))
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}

		invalidateClients(r, c)
		c.Push.SendAccount(id, push.CommunicationEvent(string(req.Channel), day))
		httpapi.WriteJSON(w, http.StatusOK, day)
	}
}

// NewListBillingHandler returns the account's billing history.
func NewListBillingHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, _, err := c.Accounts.GetAccount(r.Context(), id); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		records, err := c.Accounts.ListBilling(r.Context(), id)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": records})
	}
}

// NewGetSettingsHandler returns the account's settings row.
func NewGetSettingsHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := c.Accounts.GetSettings(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, s)
	}
}

// NewUpdateSettingsHandler replaces the settings row.
func NewUpdateSettingsHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s core.ClientSettings
		if !httpapi.ReadJSON(w, r, &s) {
			return
		}
		s.AccountID = chi.URLParam(r, "id")

		if err := c.Accounts.UpdateSettings(r.Context(), &s, activityMeta(r)); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		invalidateClients(r, c)
		httpapi.WriteJSON(w, http.StatusOK, s)
	}
}

// NewClientAnalyticsHandler serves the cross-account aggregate, cached.
func NewClientAnalyticsHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := cache.Key("clients:analytics", nil, nil)
		var a core.Analytics
		if c.Cache.Get(r.Context(), key, &a) {
			httpapi.WriteJSON(w, http.StatusOK, a)
			return
		}

		got, err := c.Accounts.Analytics(r.Context())
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		c.Cache.Set(r.Context(), key, got, listCacheTTL)
		httpapi.WriteJSON(w, http.StatusOK, got)
	}
}

// NewListActivityHandler returns the recent audit trail of an account.
func NewListActivityHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		if _, _, err := c.Accounts.GetAccount(r.Context(), id); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		items, err := c.Activity.ListActivity(r.Context(), id, limit)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func parseDateRange(r *http.Request) (from, to time.Time, err error) {
	const layout = "2006-01-02"
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(layout, v); err != nil {
			return from, to, err
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(layout, v); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
