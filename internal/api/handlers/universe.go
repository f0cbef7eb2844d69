package handlers

import (
	"net/http"

	"github.com/wonny/eodsnap/internal/universe"
	"github.com/wonny/eodsnap/pkg/logger"
)

// UniverseHandler serves universe versions
type UniverseHandler struct {
	repo   universe.Repository
	logger *logger.Logger
}

// NewUniverseHandler creates a new universe handler
func NewUniverseHandler(repo universe.Repository, log *logger.Logger) *UniverseHandler {
	return &UniverseHandler{
		repo:   repo,
		logger: log,
	}
}

// GetLatest returns the newest universe version
// GET /api/universe/latest
func (h *UniverseHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	v, err := h.repo.Latest(r.Context())
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).Error("Universe read failed")
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, v)
}
