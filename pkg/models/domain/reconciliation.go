package domain

import "time"

type RepairStrategy string

const (
	StrategyMerge           RepairStrategy = "merge"
	StrategyOverwriteLocal  RepairStrategy = "overwrite_local"
	StrategyOverwriteRemote RepairStrategy = "overwrite_remote"
	StrategyManualReview    RepairStrategy = "manual_review"
	StrategyIgnore          RepairStrategy = "ignore"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ReconciliationRule is a static repair-policy definition. Rules are immutable
// values; the registry replaces them wholesale on update.
type ReconciliationRule struct {
	ID          string
	CheckType   CheckType
	Severities  []Severity
	AutoExecute bool
	Strategy    RepairStrategy
}

// AppliesTo reports whether the rule targets the given finding. Passing checks
// never trigger repairs.
func (r ReconciliationRule) AppliesTo(c ConsistencyCheck) bool {
	if r.CheckType != c.Type {
		return false
	}
	if c.Status != StatusFailed && c.Status != StatusWarning {
		return false
	}
	for _, s := range r.Severities {
		if s == c.Severity {
			return true
		}
	}
	return false
}

// ReconciliationResult is the outcome of running one rule once.
type ReconciliationResult struct {
	RuleID           string
	Success          bool
	RecordsProcessed int
	RecordsFixed     int
	RecordsFailed    int
	Duration         time.Duration
	Details          map[string]any
	Error            string
}

// ReconciliationJob aggregates one reconciliation run. A job transitions
// pending -> running -> completed|failed exactly once and is frozen after
// CompletedAt is set.
type ReconciliationJob struct {
	ID                    string
	Status                JobStatus
	StartedAt             time.Time
	CompletedAt           *time.Time
	Results               []ReconciliationResult
	TotalRecordsProcessed int
	TotalRecordsFixed     int
	ErrorCount            int
}
