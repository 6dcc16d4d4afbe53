package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marketlake/lake/errs"
)

// writeJSON encodes data as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDetail writes the lake's uniform error body: {"detail": "..."}.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps a core-layer error to the REST status table (§7 of the
// design: 400 invalid parameters, 404 unknown id, 409 AlreadyRunning,
// 429 RateLimited propagated from the exchange, 500 otherwise).
func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnknownExchange), errors.Is(err, errs.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrInvalidIdentity),
		errors.Is(err, errs.ErrMissingStart),
		errors.Is(err, errs.ErrSchemaMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
