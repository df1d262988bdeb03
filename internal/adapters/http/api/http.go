// Package api serves the admin HTTP surface: health, metrics, target status
// and manual cycle triggering.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/steamwatch/internal/adapters/http/swagger"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/internal/domain/types"
	"github.com/okian/steamwatch/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ready returns nil while the store answers.
	Ready(ctx context.Context) error

	Registrations(ctx context.Context) ([]model.Registration, error)
	Statuses() []types.TargetStatus
	LastReport() (types.CycleReport, bool)

	// RunNow queues a cycle on the running scheduler.
	RunNow(ctx context.Context) error
}

// Server wires HTTP routes for the admin API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	targetsHandler *TargetsHandler
	checkHandler   *CheckHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		targetsHandler: NewTargetsHandler(deps),
		checkHandler:   NewCheckHandler(deps),
	}
}

// Handler returns the router with every route attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/targets", MetricsMiddleware(s.targetsHandler.HandleTargets, "targets"))
	r.Post("/check", MetricsMiddleware(s.checkHandler.HandleCheck, "check"))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	swagger.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
