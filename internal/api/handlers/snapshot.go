package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/eodsnap/internal/snapshot"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Default LEAPS filters for the long leg of a PMCC
const (
	DefaultLeapsMinDelta = 0.70
	DefaultLeapsMinOI    = 0
)

// SnapshotHandler serves final snapshots
// ⭐ SSOT: 스냅샷 조회 API 핸들러는 이 구조체에서만
type SnapshotHandler struct {
	reader *snapshot.Reader
	logger *logger.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(reader *snapshot.Reader, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		reader: reader,
		logger: log,
	}
}

// GetClose returns the canonical close
// GET /api/snapshots/{symbol}/close?date=2025-01-10
func (h *SnapshotHandler) GetClose(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	q, err := h.reader.GetCanonicalClose(r.Context(), symbol, r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, symbol, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// GetCalls returns valid calls for a covered-call scan
// GET /api/snapshots/{symbol}/calls?date=&dte_min=&dte_max=&strike_min=&strike_max=&min_bid=
func (h *SnapshotHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	dte, err := dteRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var strike snapshot.StrikeRange
	if strike.Min, err = queryFloat(r, "strike_min", 0); err != nil {
		respondError(w, http.StatusBadRequest, "strike_min must be a number")
		return
	}
	if strike.Max, err = queryFloat(r, "strike_max", 0); err != nil {
		respondError(w, http.StatusBadRequest, "strike_max must be a number")
		return
	}
	minBid, err := queryFloat(r, "min_bid", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "min_bid must be a number")
		return
	}

	view, err := h.reader.GetValidCallsForScan(r.Context(), symbol, r.URL.Query().Get("date"), dte, strike, minBid)
	if err != nil {
		h.fail(w, symbol, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// GetLeaps returns in-the-money LEAPS calls
// GET /api/snapshots/{symbol}/leaps?date=&dte_min=&dte_max=&min_delta=0.7&min_oi=
func (h *SnapshotHandler) GetLeaps(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	dte, err := dteRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	minDelta, err := queryFloat(r, "min_delta", DefaultLeapsMinDelta)
	if err != nil {
		respondError(w, http.StatusBadRequest, "min_delta must be a number")
		return
	}
	minOI, err := queryInt(r, "min_oi", DefaultLeapsMinOI)
	if err != nil {
		respondError(w, http.StatusBadRequest, "min_oi must be an integer")
		return
	}

	view, err := h.reader.GetValidLeapsForPMCC(r.Context(), symbol, r.URL.Query().Get("date"), dte, minDelta, int64(minOI))
	if err != nil {
		h.fail(w, symbol, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *SnapshotHandler) fail(w http.ResponseWriter, symbol string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithSymbol(symbol).Error("Snapshot read failed")
	}
	respondError(w, status, err.Error())
}

type badParam string

func (e badParam) Error() string { return string(e) + " must be an integer" }

func dteRange(r *http.Request) (snapshot.DTERange, error) {
	var d snapshot.DTERange
	var err error
	if d.Min, err = queryInt(r, "dte_min", 0); err != nil {
		return d, badParam("dte_min")
	}
	if d.Max, err = queryInt(r, "dte_max", 0); err != nil {
		return d, badParam("dte_max")
	}
	return d, nil
}
