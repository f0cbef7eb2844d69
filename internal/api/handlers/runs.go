package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/eodsnap/internal/audit"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/logger"
)

// RunsHandler serves run summaries and audit records
type RunsHandler struct {
	repo   audit.Repository
	logger *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(repo audit.Repository, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		repo:   repo,
		logger: log,
	}
}

// GetLatest returns the newest run summary
// GET /api/runs/latest
func (h *RunsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.LatestSummary(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// GetRecords returns the audit records of a run; ?excluded=true keeps exclusions only
// GET /api/runs/{runID}/records
func (h *RunsHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]

	records, err := h.repo.Records(r.Context(), runID)
	if err != nil {
		h.fail(w, err)
		return
	}

	if r.URL.Query().Get("excluded") == "true" {
		kept := make([]contracts.AuditRecord, 0, len(records))
		for _, rec := range records {
			if !rec.Included {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	if records == nil {
		records = []contracts.AuditRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"count":   len(records),
		"records": records,
	})
}

func (h *RunsHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("Run read failed")
	}
	respondError(w, status, err.Error())
}
