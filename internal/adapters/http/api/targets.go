package api

import (
	"net/http"
	"sort"

	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/internal/domain/types"
)

// CycleReport and TargetStatus are the read shapes of the admin API.
type (
	CycleReport  = types.CycleReport
	TargetStatus = types.TargetStatus
)

// TargetsHandler lists tracked targets with their watchers and health.
type TargetsHandler struct {
	deps Dependencies
}

// NewTargetsHandler creates a new targets handler.
func NewTargetsHandler(deps Dependencies) *TargetsHandler {
	return &TargetsHandler{deps: deps}
}

type targetView struct {
	AccountID string        `json:"account_id"`
	GameID    int64         `json:"app_id"`
	Watchers  int           `json:"watchers"`
	Status    *TargetStatus `json:"status,omitempty"`
}

type targetsResponse struct {
	Targets []targetView `json:"targets"`
}

// HandleTargets handles GET /targets.
func (h *TargetsHandler) HandleTargets(w http.ResponseWriter, r *http.Request) {
	regs, err := h.deps.Registrations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err)
		return
	}

	statuses := make(map[model.TargetKey]TargetStatus)
	for _, st := range h.deps.Statuses() {
		statuses[model.TargetKey{AccountID: st.AccountID, GameID: st.GameID}] = st
	}

	index := make(map[model.TargetKey]int)
	views := make([]targetView, 0)
	for _, reg := range regs {
		key := model.TargetKey{AccountID: reg.AccountID, GameID: reg.GameID}
		if i, ok := index[key]; ok {
			views[i].Watchers++
			continue
		}
		v := targetView{AccountID: reg.AccountID, GameID: reg.GameID, Watchers: 1}
		if st, ok := statuses[key]; ok {
			v.Status = &st
		}
		index[key] = len(views)
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].AccountID != views[j].AccountID {
			return views[i].AccountID < views[j].AccountID
		}
		return views[i].GameID < views[j].GameID
	})

	writeJSON(w, http.StatusOK, targetsResponse{Targets: views})
}
