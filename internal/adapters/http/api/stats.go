package api

import (
	"net/http"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

type statsResponse struct {
	LastCycle *CycleReport `json:"last_cycle"`
}

// HandleStats handles GET /stats. last_cycle is null until a cycle finished.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	var resp statsResponse
	if report, ok := h.deps.LastReport(); ok {
		resp.LastCycle = &report
	}
	writeJSON(w, http.StatusOK, resp)
}
