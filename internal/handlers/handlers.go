package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/coordinator"
	"github.com/devops-ind/jenkins-ha-sub004/internal/database"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// Orchestrator is the surface the HTTP layer needs from the switch
// coordinator. Kept narrow so handler tests can fake it.
type Orchestrator interface {
	Run(ctx context.Context, req *models.DeploymentRequest) ([]models.TeamResult, error)
	Status(ctx context.Context, team string) (*coordinator.TeamStatus, error)
}

// TeamLister exposes the registry reads the API serves.
type TeamLister interface {
	Snapshot() []models.Team
}

type Handler struct {
	db           *sql.DB
	config       *config.Config
	orchestrator Orchestrator
	teams        TeamLister
}

func NewHandler(db *sql.DB, cfg *config.Config, orch Orchestrator, teams TeamLister) *Handler {
	return &Handler{
		db:           db,
		config:       cfg,
		orchestrator: orch,
		teams:        teams,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Operate runs one deployment request and returns the per-team result
// set. The response never collapses into one aggregate pass/fail.
func (h *Handler) Operate(w http.ResponseWriter, r *http.Request) {
	var req models.DeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	results, err := h.orchestrator.Run(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"operation": req.Operation,
		"results":   results,
	})
}

// Teams lists every team with its committed active slot.
func (h *Handler) Teams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.teams.Snapshot())
}

// TeamStatus reports one team's slots, workloads and backend health.
func (h *Handler) TeamStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	status, err := h.orchestrator.Status(r.Context(), vars["team"])
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Audit returns recent switch transactions, optionally per team.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		records []models.SwitchTransaction
		err     error
	)
	if team := r.URL.Query().Get("team"); team != "" {
		records, err = database.TeamTransactions(h.db, team, limit)
	} else {
		records, err = database.ListTransactions(h.db, limit)
	}
	if err != nil {
		http.Error(w, "Audit query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func statusForError(err error) int {
	var unknownTeam *models.UnknownTeamError
	switch {
	case errors.As(err, &unknownTeam):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrEmptySelection):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
