package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/eodsnap/internal/audit"
	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/snapshot"
	"github.com/wonny/eodsnap/internal/universe"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps read errors to HTTP status codes.
// A stale snapshot is 409 so callers can tell it from a missing one.
func statusFor(err error) int {
	switch {
	case errors.Is(err, calendar.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrStaleSnapshot):
		return http.StatusConflict
	case errors.Is(err, snapshot.ErrPriceNotFound),
		errors.Is(err, snapshot.ErrChainNotFound),
		errors.Is(err, audit.ErrSummaryNotFound),
		errors.Is(err, universe.ErrUniverseNotFound):
		return http.StatusNotFound
	case errors.Is(err, calendar.ErrCalendarUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// queryInt reads an int query parameter, def when absent
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// queryFloat reads a float query parameter, def when absent
func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}
