// Package httpapi is the HTTP surface: middleware pipeline, guards,
// routing and JSON plumbing shared by the handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/healthguard/surveillance/internal/store/core"
)

// detailBody is the uniform error shape. Detail is a string for simple
// failures and a list of field errors for validation failures.
type detailBody struct {
	Detail any `json:"detail"`
}

// FieldError is one entry of a validation failure detail list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteDetail writes the uniform error body.
func WriteDetail(w http.ResponseWriter, status int, detail any) {
	WriteJSON(w, status, detailBody{Detail: detail})
}

// ReadJSON decodes the body into v, tolerant of unknown fields, capped
// at 1MB. A false return means the error response was already written.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if ct != "" && !strings.Contains(ct, "application/json") {
		WriteDetail(w, http.StatusBadRequest, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		WriteDetail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// WriteStoreError translates the store sentinels to the wire. Conflicts
// surface as 400 so illegal lifecycle moves and duplicate emails read
// the same to API clients.
func WriteStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		WriteDetail(w, http.StatusNotFound, "Not Found")
	case errors.Is(err, core.ErrDuplicateEmail):
		WriteDetail(w, http.StatusBadRequest, "email already registered")
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrInvalid):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		WriteDetail(w, http.StatusBadRequest, msg)
	default:
		WriteDetail(w, http.StatusInternalServerError, "internal server error")
	}
}
