package api

import (
	"errors"
	"net/http"

	"github.com/okian/steamwatch/internal/domain/scheduler"
)

// CheckHandler queues a manual cycle.
type CheckHandler struct {
	deps Dependencies
}

// NewCheckHandler creates a new check handler.
func NewCheckHandler(deps Dependencies) *CheckHandler {
	return &CheckHandler{deps: deps}
}

type checkResponse struct {
	Status string `json:"status"`
}

// HandleCheck handles POST /check: 202 when queued, 409 when a cycle is
// already waiting, 503 when the scheduler is not running.
func (h *CheckHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	err := h.deps.RunNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, checkResponse{Status: "queued"})
	case errors.Is(err, scheduler.ErrCycleQueued):
		writeError(w, http.StatusConflict, "already_queued", err)
	case errors.Is(err, scheduler.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, "not_running", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
