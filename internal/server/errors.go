package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"r2-share/internal/logging"
	"r2-share/internal/registry"
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a registry or store error to a response. Anything that
// is not a client mistake is logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, op, path string, err error) {
	var (
		verr   *registry.ValidationError
		maxErr *http.MaxBytesError
		berr   *registry.BodyError
	)
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, registry.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrTooLarge), errors.As(err, &maxErr):
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	case errors.As(err, &berr):
		logging.Info("upload_body_failed", logging.Fields{
			"rid":  RequestIDFromContext(r.Context()),
			"path": path,
			"err":  berr.Err.Error(),
		})
		http.Error(w, "upload interrupted", http.StatusBadRequest)
	default:
		logging.Error("store_error", logging.Fields{
			"rid":  RequestIDFromContext(r.Context()),
			"op":   op,
			"path": path,
		}, err)
		http.Error(w, "storage error", http.StatusInternalServerError)
	}
}

// isClientError reports errors caused by the request rather than the
// store.
func isClientError(err error) bool {
	var (
		verr   *registry.ValidationError
		maxErr *http.MaxBytesError
		berr   *registry.BodyError
	)
	return errors.As(err, &verr) ||
		errors.As(err, &berr) ||
		errors.Is(err, registry.ErrNotFound) ||
		errors.Is(err, registry.ErrTooLarge) ||
		errors.As(err, &maxErr)
}
