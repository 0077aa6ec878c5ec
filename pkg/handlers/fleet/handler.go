package fleet

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/envio-tools/fleet-atlas/pkg/adapters"
	"github.com/envio-tools/fleet-atlas/pkg/models/api"
	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/services/gp51"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Verifier interface {
	PerformFullCheck(ctx context.Context) (domain.ConsistencyReport, error)
}

type Reconciler interface {
	RunAutomatic(ctx context.Context) domain.ReconciliationJob
	RunManual(ctx context.Context, ruleIDs []string) domain.ReconciliationJob
	GetJobStatus(id string) (domain.ReconciliationJob, bool)
	GetActiveJobs() []domain.ReconciliationJob
	Rules() []domain.ReconciliationRule
}

type HealthChecker interface {
	ConnectionHealth(ctx context.Context) (gp51.ConnectionHealth, error)
}

type Handler struct {
	verifier   Verifier
	reconciler Reconciler
	health     HealthChecker
}

func NewHandler(verifier Verifier, reconciler Reconciler, health HealthChecker) *Handler {
	return &Handler{
		verifier:   verifier,
		reconciler: reconciler,
		health:     health,
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) GetConsistencyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	report, err := h.verifier.PerformFullCheck(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("consistency check failed")
		http.Error(w, "consistency check failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapConsistencyReportDomainToApi(report))
}

func (h *Handler) RunAutomaticReconciliation(w http.ResponseWriter, r *http.Request) {
	job := h.reconciler.RunAutomatic(r.Context())
	writeJSON(w, r, http.StatusOK, adapters.MapReconciliationJobDomainToApi(job))
}

func (h *Handler) RunManualReconciliation(w http.ResponseWriter, r *http.Request) {
	var req api.ManualReconciliationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.RuleIDs) == 0 {
		http.Error(w, "rule_ids is required", http.StatusBadRequest)
		return
	}

	job := h.reconciler.RunManual(r.Context(), req.RuleIDs)
	writeJSON(w, r, http.StatusOK, adapters.MapReconciliationJobDomainToApi(job))
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.reconciler.GetActiveJobs()
	response := make([]api.ReconciliationJob, 0, len(jobs))
	for _, j := range jobs {
		response = append(response, adapters.MapReconciliationJobDomainToApi(j))
	}
	writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.reconciler.GetJobStatus(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapReconciliationJobDomainToApi(job))
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.reconciler.Rules()
	response := make([]api.ReconciliationRule, 0, len(rules))
	for _, rule := range rules {
		response = append(response, adapters.MapReconciliationRuleDomainToApi(rule))
	}
	writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) GetGP51Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	health, err := h.health.ConnectionHealth(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("gp51 health probe failed")
		http.Error(w, "health probe failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, api.ConnectionHealth{
		IsConnected:    health.IsConnected,
		ResponseTimeMs: health.ResponseTime.Milliseconds(),
		TokenValid:     health.TokenValid,
		SessionValid:   health.SessionValid,
		Error:          health.Error,
	})
}
