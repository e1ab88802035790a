// Package handlers holds the HTTP handler constructors. Each one takes
// the app container and returns a plain http.HandlerFunc.
package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/app"
	"github.com/healthguard/surveillance/internal/httpapi"
	"github.com/healthguard/surveillance/internal/observability/logger"
	"github.com/healthguard/surveillance/internal/security/password"
	"github.com/healthguard/surveillance/internal/store/core"
)

type tokenResponse struct {
	Access    string     `json:"access"`
	Renewal   string     `json:"renewal"`
	TokenType string     `json:"token_type"`
	ExpiresIn int64      `json:"expires_in"`
	User      *core.User `json:"user"`
}

// NewLoginHandler authenticates username/password and issues the pair.
func NewLoginHandler(c *app.Container) http.HandlerFunc {
	log := logger.Named("auth")
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		var fields []httpapi.FieldError
		if req.Username == "" {
			fields = append(fields, httpapi.FieldError{Field: "username", Message: "required"})
		}
		if req.Password == "" {
			fields = append(fields, httpapi.FieldError{Field: "password", Message: "required"})
		}
		if len(fields) > 0 {
			httpapi.WriteDetail(w, http.StatusBadRequest, fields)
			return
		}

		u, err := c.Users.GetUserByUsername(r.Context(), req.Username)
		if err != nil {
			log.Info("login rejected", zap.String("username", req.Username))
			httpapi.WriteDetail(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if !password.Verify(req.Password, u.PasswordHash) {
			log.Info("login rejected", zap.String("username", req.Username))
			httpapi.WriteDetail(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if !u.Active {
			httpapi.WriteDetail(w, http.StatusBadRequest, "user account is inactive")
			return
		}

		pair, err := c.Tokens.Issue(u)
		if err != nil {
			log.Error("token issue failed", zap.Error(err))
			httpapi.WriteDetail(w, http.StatusInternalServerError, "internal server error")
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, tokenResponse{
			Access:    pair.Access,
			Renewal:   pair.Renewal,
			TokenType: "bearer",
			ExpiresIn: pair.ExpiresIn,
			User:      u,
		})
	}
}

// NewRefreshHandler exchanges a renewal token for a fresh pair.
func NewRefreshHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Renewal string `json:"renewal"`
		}
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}
		if req.Renewal == "" {
			httpapi.WriteDetail(w, http.StatusUnauthorized, "renewal token required")
			return
		}

		pair, payload, err := c.Tokens.Renew(req.Renewal)
		if err != nil {
			httpapi.WriteDetail(w, http.StatusUnauthorized, "invalid renewal token")
			return
		}
		u, err := c.Users.GetUserByID(r.Context(), payload.UserID)
		if err != nil || !u.Active {
			httpapi.WriteDetail(w, http.StatusUnauthorized, "invalid renewal token")
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, tokenResponse{
			Access:    pair.Access,
			Renewal:   pair.Renewal,
			TokenType: "bearer",
			ExpiresIn: pair.ExpiresIn,
			User:      u,
		})
	}
}

// NewMeHandler returns the caller's profile.
func NewMeHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := httpapi.PayloadFromContext(r.Context())
		u, err := c.Users.GetUserByID(r.Context(), p.UserID)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, u)
	}
}

// NewChangePasswordHandler verifies the current password and persists
// the new hash. Existing tokens stay valid until expiry.
func NewChangePasswordHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Current string `json:"current"`
			New     string `json:"new"`
		}
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}
		if len(req.New) < 8 {
			httpapi.WriteDetail(w, http.StatusBadRequest, []httpapi.FieldError{
				{Field: "new", Message: "must be at least 8 characters"},
			})
			return
		}

		p := httpapi.PayloadFromContext(r.Context())
		u, err := c.Users.GetUserByID(r.Context(), p.UserID)
		if err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		if !password.Verify(req.Current, u.PasswordHash) {
			httpapi.WriteDetail(w, http.StatusBadRequest, "current password is incorrect")
			return
		}

		hash, err := password.Hash(password.Default, req.New)
		if err != nil {
			httpapi.WriteDetail(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if err := c.Users.UpdateUserPassword(r.Context(), u.ID, hash); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
	}
}

// NewLogoutHandler is advisory: tokens are not revocable, so logout just
// acknowledges and the client discards its pair.
func NewLogoutHandler(c *app.Container) http.HandlerFunc {
	log := logger.Named("auth")
	return func(w http.ResponseWriter, r *http.Request) {
		p := httpapi.PayloadFromContext(r.Context())
		log.Info("logout", zap.String("user", p.Subject))
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
	}
}

// NewRegisterHandler creates a principal. Duplicate username or email
// answers 400.
func NewRegisterHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username  string    `json:"username"`
			Email     string    `json:"email"`
			Password  string    `json:"password"`
			Role      core.Role `json:"role"`
			AccountID *string   `json:"account_id"`
		}
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}

		var fields []httpapi.FieldError
		if strings.TrimSpace(req.Username) == "" {
			fields = append(fields, httpapi.FieldError{Field: "username", Message: "required"})
		}
		if !strings.Contains(req.Email, "@") {
			fields = append(fields, httpapi.FieldError{Field: "email", Message: "must be a valid email"})
		}
		if len(req.Password) < 8 {
			fields = append(fields, httpapi.FieldError{Field: "password", Message: "must be at least 8 characters"})
		}
		if req.Role == "" {
			req.Role = core.RoleUser
		}
		if !req.Role.Valid() {
			fields = append(fields, httpapi.FieldError{Field: "role", Message: "must be admin, client or user"})
		}
		if len(fields) > 0 {
			httpapi.WriteDetail(w, http.StatusBadRequest, fields)
			return
		}

		hash, err := password.Hash(password.Default, req.Password)
		if err != nil {
			httpapi.WriteDetail(w, http.StatusInternalServerError, "internal server error")
			return
		}
		u := &core.User{
			Username:     strings.TrimSpace(req.Username),
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: hash,
			Role:         req.Role,
			AccountID:    req.AccountID,
			Active:       true,
		}
		if err := c.Users.CreateUser(r.Context(), u); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusCreated, u)
	}
}

// NewResetPasswordHandler sets a new password when username and email
// both match an existing user; anything else is 404.
func NewResetPasswordHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			New      string `json:"new"`
		}
		if !httpapi.ReadJSON(w, r, &req) {
			return
		}
		if len(req.New) < 8 {
			httpapi.WriteDetail(w, http.StatusBadRequest, []httpapi.FieldError{
				{Field: "new", Message: "must be at least 8 characters"},
			})
			return
		}

		u, err := c.Users.GetUserByUsername(r.Context(), req.Username)
		if err != nil || !strings.EqualFold(u.Email, strings.TrimSpace(req.Email)) {
			httpapi.WriteDetail(w, http.StatusNotFound, "Not Found")
			return
		}
		hash, err := password.Hash(password.Default, req.New)
		if err != nil {
			httpapi.WriteDetail(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if err := c.Users.UpdateUserPassword(r.Context(), u.ID, hash); err != nil {
			httpapi.WriteStoreError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
	}
}
