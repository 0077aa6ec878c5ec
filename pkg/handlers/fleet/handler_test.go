package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/api"
	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/services/gp51"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVerifier is a mock implementation of Verifier for testing
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) PerformFullCheck(ctx context.Context) (domain.ConsistencyReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.ConsistencyReport), args.Error(1)
}

// MockReconciler is a mock implementation of Reconciler for testing
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) RunAutomatic(ctx context.Context) domain.ReconciliationJob {
	args := m.Called(ctx)
	return args.Get(0).(domain.ReconciliationJob)
}

func (m *MockReconciler) RunManual(ctx context.Context, ruleIDs []string) domain.ReconciliationJob {
	args := m.Called(ctx, ruleIDs)
	return args.Get(0).(domain.ReconciliationJob)
}

func (m *MockReconciler) GetJobStatus(id string) (domain.ReconciliationJob, bool) {
	args := m.Called(id)
	return args.Get(0).(domain.ReconciliationJob), args.Bool(1)
}

func (m *MockReconciler) GetActiveJobs() []domain.ReconciliationJob {
	args := m.Called()
	return args.Get(0).([]domain.ReconciliationJob)
}

func (m *MockReconciler) Rules() []domain.ReconciliationRule {
	args := m.Called()
	return args.Get(0).([]domain.ReconciliationRule)
}

// MockHealthChecker is a mock implementation of HealthChecker for testing
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) ConnectionHealth(ctx context.Context) (gp51.ConnectionHealth, error) {
	args := m.Called(ctx)
	return args.Get(0).(gp51.ConnectionHealth), args.Error(1)
}

func newTestRouter(verifier Verifier, reconciler Reconciler, health HealthChecker) *chi.Mux {
	handler := NewHandler(verifier, reconciler, health)
	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/consistency/report", handler.GetConsistencyReport)
		r.Post("/reconciliation/automatic", handler.RunAutomaticReconciliation)
		r.Post("/reconciliation/manual", handler.RunManualReconciliation)
		r.Get("/reconciliation/jobs", handler.ListJobs)
		r.Get("/reconciliation/jobs/{id}", handler.GetJob)
		r.Get("/reconciliation/rules", handler.ListRules)
		r.Get("/gp51/health", handler.GetGP51Health)
	})
	return router
}

func sampleJob() domain.ReconciliationJob {
	completed := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	return domain.ReconciliationJob{
		ID:          "job-1",
		Status:      domain.JobCompleted,
		StartedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt: &completed,
		Results: []domain.ReconciliationResult{
			{RuleID: "fix_orphaned_vehicles", Success: true, RecordsProcessed: 3, RecordsFixed: 3},
		},
		TotalRecordsProcessed: 3,
		TotalRecordsFixed:     3,
	}
}

func TestHandler_GetConsistencyReport(t *testing.T) {
	t.Run("maps the domain report to the api shape", func(t *testing.T) {
		verifier := new(MockVerifier)
		report := domain.NewReport(
			time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			[]domain.ConsistencyCheck{
				domain.PassedCheck(domain.CheckUserVehicleLink, "ok"),
				{Type: domain.CheckDataIntegrity, Status: domain.StatusFailed, Severity: domain.SeverityCritical},
			},
			[]string{"Address 1 critical consistency failure(s) immediately"},
		)
		verifier.On("PerformFullCheck", mock.Anything).Return(report, nil)

		router := newTestRouter(verifier, new(MockReconciler), new(MockHealthChecker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consistency/report", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got api.ConsistencyReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 50, got.OverallScore)
		assert.Equal(t, "critical", got.DataHealth)
		require.Len(t, got.Checks, 2)
		assert.Equal(t, "user_vehicle_link", got.Checks[0].CheckType)
		assert.Equal(t, api.SeverityCritical, got.Checks[1].Severity)
	})

	t.Run("verification failure is a 500", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("PerformFullCheck", mock.Anything).
			Return(domain.ConsistencyReport{}, errors.New("store down"))

		router := newTestRouter(verifier, new(MockReconciler), new(MockHealthChecker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consistency/report", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_Reconciliation(t *testing.T) {
	t.Run("automatic run returns the job", func(t *testing.T) {
		reconciler := new(MockReconciler)
		reconciler.On("RunAutomatic", mock.Anything).Return(sampleJob())

		router := newTestRouter(new(MockVerifier), reconciler, new(MockHealthChecker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/automatic", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got api.ReconciliationJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, "completed", got.Status)
		require.Len(t, got.Results, 1)
		assert.Equal(t, 3, got.Results[0].RecordsFixed)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("manual run forwards the selected rules", func(t *testing.T) {
		reconciler := new(MockReconciler)
		reconciler.On("RunManual", mock.Anything, []string{"update_missing_metadata"}).Return(sampleJob())

		router := newTestRouter(new(MockVerifier), reconciler, new(MockHealthChecker))
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/manual",
			strings.NewReader(`{"rule_ids":["update_missing_metadata"]}`))
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		reconciler.AssertExpectations(t)
	})

	t.Run("manual run requires rule ids", func(t *testing.T) {
		router := newTestRouter(new(MockVerifier), new(MockReconciler), new(MockHealthChecker))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/manual",
			strings.NewReader(`{"rule_ids":[]}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/manual",
			strings.NewReader(`not json`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Jobs(t *testing.T) {
	t.Run("list jobs", func(t *testing.T) {
		reconciler := new(MockReconciler)
		reconciler.On("GetActiveJobs").Return([]domain.ReconciliationJob{sampleJob()})

		router := newTestRouter(new(MockVerifier), reconciler, new(MockHealthChecker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/jobs", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got []api.ReconciliationJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "job-1", got[0].ID)
	})

	t.Run("get job by id", func(t *testing.T) {
		reconciler := new(MockReconciler)
		reconciler.On("GetJobStatus", "job-1").Return(sampleJob(), true)

		router := newTestRouter(new(MockVerifier), reconciler, new(MockHealthChecker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/jobs/job-1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown job is a 404", func(t *testing.T) {
		reconciler := new(MockReconciler)
		reconciler.On("GetJobStatus", "ghost").Return(domain.ReconciliationJob{}, false)

		router := newTestRouter(new(MockVerifier), reconciler, new(MockHealthChecker))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/jobs/ghost", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_ListRules(t *testing.T) {
	reconciler := new(MockReconciler)
	reconciler.On("Rules").Return([]domain.ReconciliationRule{
		{
			ID:          "fix_orphaned_vehicles",
			CheckType:   domain.CheckUserVehicleLink,
			Severities:  []domain.Severity{domain.SeverityHigh, domain.SeverityCritical},
			AutoExecute: true,
			Strategy:    domain.StrategyMerge,
		},
	})

	router := newTestRouter(new(MockVerifier), reconciler, new(MockHealthChecker))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/rules", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []api.ReconciliationRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "fix_orphaned_vehicles", got[0].ID)
	assert.Equal(t, []api.Severity{api.SeverityHigh, api.SeverityCritical}, got[0].Severities)
	assert.Equal(t, "merge", got[0].Strategy)
}

func TestHandler_GetGP51Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		health := new(MockHealthChecker)
		health.On("ConnectionHealth", mock.Anything).Return(gp51.ConnectionHealth{
			IsConnected:  true,
			ResponseTime: 120 * time.Millisecond,
			TokenValid:   true,
			SessionValid: true,
		}, nil)

		router := newTestRouter(new(MockVerifier), new(MockReconciler), health)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gp51/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got api.ConnectionHealth
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.IsConnected)
		assert.Equal(t, int64(120), got.ResponseTimeMs)
	})

	t.Run("probe failure is a 500", func(t *testing.T) {
		health := new(MockHealthChecker)
		health.On("ConnectionHealth", mock.Anything).
			Return(gp51.ConnectionHealth{}, errors.New("dial timeout"))

		router := newTestRouter(new(MockVerifier), new(MockReconciler), health)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gp51/health", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
