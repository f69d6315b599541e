package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aradsms/wa_gateway/internal/platform/auth"
	"github.com/aradsms/wa_gateway/internal/platform/circuitbreaker"
	jobdomain "github.com/aradsms/wa_gateway/internal/scheduler_service/domain"
)

// JobAdmin is the operator surface of the job queue.
type JobAdmin interface {
	FailedJobs(ctx context.Context, limit int) ([]*jobdomain.Job, error)
	RetryFailedJob(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	Cancel(ctx context.Context, hook string, argsMatch map[string]any) (int64, error)
	PendingCount(ctx context.Context, hook string) (int, error)
}

// CircuitAdmin is the operator surface of the breaker registry.
type CircuitAdmin interface {
	Snapshots(ctx context.Context) ([]circuitbreaker.Snapshot, error)
	Reset(ctx context.Context, name string)
	IsAvailable(ctx context.Context, name string) bool
}

type CancelJobsRequestDTO struct {
	Hook      string         `json:"hook" validate:"required"`
	ArgsMatch map[string]any `json:"args_match"`
}

type CancelJobsResponseDTO struct {
	Cancelled int64 `json:"cancelled"`
}

type PendingJobsResponseDTO struct {
	Hook    string `json:"hook"`
	Pending int    `json:"pending"`
}

type RetryJobResponseDTO struct {
	OldJobID uuid.UUID `json:"old_job_id"`
	NewJobID uuid.UUID `json:"new_job_id"`
}

type CircuitHealthDTO struct {
	Service   string `json:"service"`
	State     string `json:"state"`
	Available bool   `json:"available"`
}

type HealthResponseDTO struct {
	Status   string             `json:"status"`
	Circuits []CircuitHealthDTO `json:"circuits"`
}

// AdminHandler exposes job and circuit introspection to admin principals.
type AdminHandler struct {
	jobs      JobAdmin
	circuits  CircuitAdmin
	validate  *validator.Validate
	logger    *slog.Logger
	jwtSecret string
}

func NewAdminHandler(jobs JobAdmin, circuits CircuitAdmin, validate *validator.Validate, jwtSecret string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		jobs:      jobs,
		circuits:  circuits,
		validate:  validate,
		logger:    logger.With("component", "admin_handler"),
		jwtSecret: jwtSecret,
	}
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(h.jwtSecret, h.logger))
		r.Use(auth.RequireAdmin(h.logger))
		r.Get("/jobs/failed", h.ListFailedJobs)
		r.Post("/jobs/{jobID}/retry", h.RetryJob)
		r.Post("/jobs/cancel", h.CancelJobs)
		r.Get("/jobs/pending", h.PendingJobs)
		r.Get("/circuits", h.ListCircuits)
		r.Post("/circuits/{name}/reset", h.ResetCircuit)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *AdminHandler) ListFailedJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := h.jobs.FailedJobs(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list failed jobs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*jobdomain.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *AdminHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	newID, err := h.jobs.RetryFailedJob(ctx, id)
	switch {
	case errors.Is(err, jobdomain.ErrNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case errors.Is(err, jobdomain.ErrJobNotFailed):
		http.Error(w, "Job is not in failed state", http.StatusConflict)
		return
	case errors.Is(err, jobdomain.ErrUnauthorizedDispatch):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "Failed to retry job", "error", err, "job_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, RetryJobResponseDTO{OldJobID: id, NewJobID: newID})
}

func (h *AdminHandler) CancelJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CancelJobsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		http.Error(w, fmt.Sprintf("Validation error: %s", err.Error()), http.StatusBadRequest)
		return
	}

	n, err := h.jobs.Cancel(ctx, req.Hook, req.ArgsMatch)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to cancel jobs", "error", err, "hook", req.Hook)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, CancelJobsResponseDTO{Cancelled: n})
}

func (h *AdminHandler) PendingJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hook := r.URL.Query().Get("hook")
	if hook == "" {
		http.Error(w, "hook is required", http.StatusBadRequest)
		return
	}
	n, err := h.jobs.PendingCount(ctx, hook)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to count pending jobs", "error", err, "hook", hook)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, PendingJobsResponseDTO{Hook: hook, Pending: n})
}

func (h *AdminHandler) ListCircuits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snaps, err := h.circuits.Snapshots(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list circuits", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *AdminHandler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	p, _ := auth.PrincipalFrom(ctx)
	h.circuits.Reset(ctx, name)
	h.logger.InfoContext(ctx, "Circuit reset by operator", "service", name, "principal_id", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Health is public. It reports degraded while any circuit is open.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snaps, err := h.circuits.Snapshots(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Health check could not read circuit state", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponseDTO{Status: "unknown", Circuits: []CircuitHealthDTO{}})
		return
	}

	resp := HealthResponseDTO{Status: "ok", Circuits: make([]CircuitHealthDTO, 0, len(snaps))}
	for _, s := range snaps {
		available := h.circuits.IsAvailable(ctx, s.ServiceName)
		if !available {
			resp.Status = "degraded"
		}
		resp.Circuits = append(resp.Circuits, CircuitHealthDTO{Service: s.ServiceName, State: s.State.String(), Available: available})
	}
	writeJSON(w, http.StatusOK, resp)
}
