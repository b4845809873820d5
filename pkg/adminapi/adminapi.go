// Package adminapi exposes the agent's local control surface: job status,
// manual sync triggers and settings reevaluation. It binds to a loopback
// address and carries no authentication of its own.
package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/orchestrator"
)

type Server struct {
	Orch   *orchestrator.Orchestrator
	Logger *slog.Logger
}

func NewServer(orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	return &Server{Orch: orch, Logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/v1/status", s.handleStatus)
	r.Post("/v1/sync/{metric}/run", s.handleRunNow)
	r.Post("/v1/sync/reevaluate", s.handleReevaluate)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// jobStatus is one job's schedule state as reported by /v1/status.
type jobStatus struct {
	Job        string `json:"job"`
	TaskStatus string `json:"task_status"`
	NextFire   string `json:"next_fire,omitempty"`
	RetryCount int    `json:"retry_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []jobStatus{}
	for _, name := range s.Orch.Sched.Names() {
		state, task, ok := s.Orch.Sched.Status(name)
		if !ok {
			continue
		}
		js := jobStatus{
			Job:        name,
			TaskStatus: task.String(),
			RetryCount: state.RetryCount,
		}
		if !state.NextFire.IsZero() {
			js.NextFire = state.NextFire.Format(time.RFC3339)
		}
		jobs = append(jobs, js)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	metric := shared.Metric(chi.URLParam(r, "metric"))

	known := false
	for _, m := range shared.AllMetrics {
		if m == metric {
			known = true
			break
		}
	}
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown metric"})
		return
	}

	if err := s.Orch.RunNow(metric); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	s.Logger.Info("Manual sync triggered", "metric", string(metric))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleReevaluate(w http.ResponseWriter, r *http.Request) {
	if err := s.Orch.Reevaluate(r.Context()); err != nil {
		s.Logger.Error("Reevaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reevaluated"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
