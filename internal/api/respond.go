package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/plan"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps engine errors to a status code. extra fields are merged
// into the body, so a rejected gesture can carry the resulting state.
func writeError(w http.ResponseWriter, err error, extra map[string]any) {
	body := map[string]any{"error": err.Error()}
	if code := errreport.Code(err); code != "" {
		body["code"] = code
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, plan.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, plan.ErrBusy), errors.Is(err, plan.ErrInvalidState), errors.Is(err, plan.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, plan.ErrPolicyViolation), errors.Is(err, plan.ErrInvalidHierarchy):
		return http.StatusUnprocessableEntity
	}
	switch cat, _ := errreport.Classify(err); cat {
	case errreport.CategoryValidation:
		return http.StatusUnprocessableEntity
	case errreport.CategoryPermission:
		return http.StatusForbidden
	case errreport.CategoryNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
