package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/transfa/kyc-service/internal/app"
)

const maxRequestBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service error kinds onto HTTP statuses. Unclassified errors
// are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	message := err.Error()
	switch app.KindOf(err) {
	case app.ErrAuthenticationRequired:
		writeError(w, http.StatusUnauthorized, message)
	case app.ErrAuthorizationDenied:
		writeError(w, http.StatusForbidden, message)
	case app.ErrNotFound:
		writeError(w, http.StatusNotFound, message)
	case app.ErrValidation:
		writeError(w, http.StatusBadRequest, message)
	case app.ErrConflict:
		writeError(w, http.StatusConflict, message)
	default:
		log.Printf("level=error component=api msg=\"request failed\" method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
