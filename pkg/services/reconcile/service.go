package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/services/validation"
	"github.com/envio-tools/fleet-atlas/pkg/store/postgres/fleet"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Verifier produces the fresh report each reconciliation run is gated on.
// Satisfied by consistency.Verifier.
type Verifier interface {
	PerformFullCheck(ctx context.Context) (domain.ConsistencyReport, error)
}

// DeviceLister is the single GP51 capability reconciliation needs.
type DeviceLister interface {
	QueryMonitorList(ctx context.Context) (*validation.DeviceListResponse, error)
}

type Settings struct {
	// MetadataBatchLimit bounds one metadata-refresh run so a single job never
	// triggers unbounded remote traffic.
	MetadataBatchLimit int
	// RecentActivityWindow mirrors the verifier's inactive-with-activity window.
	RecentActivityWindow time.Duration
	// MaxRetainedJobs caps the in-memory job registry; the oldest finished
	// jobs are evicted beyond it.
	MaxRetainedJobs int
}

func DefaultSettings() Settings {
	return Settings{
		MetadataBatchLimit:   50,
		RecentActivityWindow: 24 * time.Hour,
		MaxRetainedJobs:      100,
	}
}

// Service maps consistency findings to idempotent repair rules and executes
// them, tracking per-rule and aggregate outcomes per job.
type Service struct {
	verifier Verifier
	fleet    fleet.Store
	gp51     DeviceLister
	catalog  *Catalog
	settings Settings

	mu       sync.Mutex
	jobs     map[string]*domain.ReconciliationJob
	jobOrder []string
}

func NewService(verifier Verifier, fleetStore fleet.Store, deviceLister DeviceLister, catalog *Catalog, settings Settings) *Service {
	return &Service{
		verifier: verifier,
		fleet:    fleetStore,
		gp51:     deviceLister,
		catalog:  catalog,
		settings: settings,
		jobs:     make(map[string]*domain.ReconciliationJob),
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Rules exposes the current catalog in execution order.
func (s *Service) Rules() []domain.ReconciliationRule { return s.catalog.Rules() }

// ApplicableRules selects, in catalog order, the rules for which the report
// contains at least one matching failed or warning finding.
func (s *Service) ApplicableRules(report domain.ConsistencyReport, autoOnly bool) []domain.ReconciliationRule {
	var applicable []domain.ReconciliationRule
	for _, rule := range s.catalog.Rules() {
		if autoOnly && !rule.AutoExecute {
			continue
		}
		for _, check := range report.Checks {
			if rule.AppliesTo(check) {
				applicable = append(applicable, rule)
				break
			}
		}
	}
	return applicable
}

// RunAutomatic creates a job, runs a fresh consistency check, and executes
// every applicable auto-executable rule sequentially. Rule failures are
// recorded, never raised; only a failed verification marks the job failed.
// The job is always returned, never an error.
func (s *Service) RunAutomatic(ctx context.Context) domain.ReconciliationJob {
	logger := zerolog.Ctx(ctx)
	job := s.startJob()

	report, err := s.verifier.PerformFullCheck(ctx)
	if err != nil {
		logger.Error().Err(err).Str("job_id", job).Msg("reconciliation aborted: consistency check failed")
		return s.finishJob(job, domain.JobFailed, 1)
	}

	rules := s.ApplicableRules(report, true)
	logger.Info().Str("job_id", job).Int("rules", len(rules)).Msg("starting automatic reconciliation")
	s.runRules(ctx, job, rules)
	return s.finishJob(job, domain.JobCompleted, 0)
}

// RunManual executes the caller-selected rules regardless of their
// auto-execute flag, still gated on the findings of a fresh report.
func (s *Service) RunManual(ctx context.Context, ruleIDs []string) domain.ReconciliationJob {
	logger := zerolog.Ctx(ctx)
	job := s.startJob()

	report, err := s.verifier.PerformFullCheck(ctx)
	if err != nil {
		logger.Error().Err(err).Str("job_id", job).Msg("reconciliation aborted: consistency check failed")
		return s.finishJob(job, domain.JobFailed, 1)
	}

	var rules []domain.ReconciliationRule
	for _, id := range ruleIDs {
		rule, ok := s.catalog.Get(id)
		if !ok {
			s.appendResult(job, domain.ReconciliationResult{
				RuleID: id,
				Error:  fmt.Sprintf("unknown rule %q", id),
			})
			continue
		}
		applies := false
		for _, check := range report.Checks {
			if rule.AppliesTo(check) {
				applies = true
				break
			}
		}
		if !applies {
			logger.Info().Str("job_id", job).Str("rule", id).Msg("skipping rule: no matching findings")
			continue
		}
		rules = append(rules, rule)
	}

	s.runRules(ctx, job, rules)
	return s.finishJob(job, domain.JobCompleted, 0)
}

func (s *Service) runRules(ctx context.Context, jobID string, rules []domain.ReconciliationRule) {
	logger := zerolog.Ctx(ctx)
	// Sequential on purpose: linking must land before metadata refresh reads
	// ownership, and partial failure of one rule must not poison the next.
	for _, rule := range rules {
		res := s.executeRule(ctx, rule)
		logger.Info().
			Str("job_id", jobID).
			Str("rule", rule.ID).
			Bool("success", res.Success).
			Int("processed", res.RecordsProcessed).
			Int("fixed", res.RecordsFixed).
			Int("failed", res.RecordsFailed).
			Msg("rule executed")
		s.appendResult(jobID, res)
	}
}

func (s *Service) startJob() string {
	job := &domain.ReconciliationJob{
		ID:        uuid.NewString(),
		Status:    domain.JobPending,
		StartedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	s.evictLocked()
	job.Status = domain.JobRunning
	return job.ID
}

// evictLocked drops the oldest finished jobs beyond the retention cap.
func (s *Service) evictLocked() {
	if s.settings.MaxRetainedJobs <= 0 {
		return
	}
	for len(s.jobOrder) > s.settings.MaxRetainedJobs {
		evicted := false
		for i, id := range s.jobOrder {
			j := s.jobs[id]
			if j.Status == domain.JobCompleted || j.Status == domain.JobFailed {
				delete(s.jobs, id)
				s.jobOrder = append(s.jobOrder[:i], s.jobOrder[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

func (s *Service) appendResult(jobID string, res domain.ReconciliationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	job.Results = append(job.Results, res)
	job.TotalRecordsProcessed += res.RecordsProcessed
	job.TotalRecordsFixed += res.RecordsFixed
	if !res.Success {
		job.ErrorCount++
	}
}

func (s *Service) finishJob(jobID string, status domain.JobStatus, extraErrors int) domain.ReconciliationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ReconciliationJob{ID: jobID, Status: status}
	}
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.ErrorCount += extraErrors
	return snapshotJob(job)
}

// GetJobStatus returns a copy of the job; the registry copy stays frozen once
// completed.
func (s *Service) GetJobStatus(id string) (domain.ReconciliationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ReconciliationJob{}, false
	}
	return snapshotJob(job), true
}

func (s *Service) GetActiveJobs() []domain.ReconciliationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]domain.ReconciliationJob, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		jobs = append(jobs, snapshotJob(s.jobs[id]))
	}
	return jobs
}

func snapshotJob(job *domain.ReconciliationJob) domain.ReconciliationJob {
	out := *job
	out.Results = append([]domain.ReconciliationResult(nil), job.Results...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
