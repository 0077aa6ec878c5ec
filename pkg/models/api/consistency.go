package api

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ConsistencyCheck struct {
	CheckType   string         `json:"check_type"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Severity    Severity       `json:"severity"`
	AutoFixable bool           `json:"auto_fixable"`
}

type ConsistencyReport struct {
	Timestamp       time.Time          `json:"timestamp"`
	OverallScore    int                `json:"overall_score"`
	ChecksPerformed int                `json:"checks_performed"`
	ChecksPassed    int                `json:"checks_passed"`
	ChecksFailed    int                `json:"checks_failed"`
	Checks          []ConsistencyCheck `json:"checks"`
	Recommendations []string           `json:"recommendations"`
	DataHealth      string             `json:"data_health"`
}
