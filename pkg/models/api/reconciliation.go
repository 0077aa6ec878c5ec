package api

import "time"

type ReconciliationRule struct {
	ID          string     `json:"id"`
	CheckType   string     `json:"check_type"`
	Severities  []Severity `json:"severities"`
	AutoExecute bool       `json:"auto_execute"`
	Strategy    string     `json:"strategy"`
}

type ReconciliationResult struct {
	RuleID           string         `json:"rule_id"`
	Success          bool           `json:"success"`
	RecordsProcessed int            `json:"records_processed"`
	RecordsFixed     int            `json:"records_fixed"`
	RecordsFailed    int            `json:"records_failed"`
	DurationMs       int64          `json:"duration_ms"`
	Details          map[string]any `json:"details,omitempty"`
	Error            string         `json:"error,omitempty"`
}

type ReconciliationJob struct {
	ID                    string                 `json:"id"`
	Status                string                 `json:"status"`
	StartedAt             time.Time              `json:"started_at"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty"`
	Results               []ReconciliationResult `json:"results"`
	TotalRecordsProcessed int                    `json:"total_records_processed"`
	TotalRecordsFixed     int                    `json:"total_records_fixed"`
	ErrorCount            int                    `json:"error_count"`
}

type ManualReconciliationRequest struct {
	RuleIDs []string `json:"rule_ids"`
}

type ConnectionHealth struct {
	IsConnected    bool   `json:"is_connected"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	TokenValid     bool   `json:"token_valid"`
	SessionValid   bool   `json:"session_valid"`
	Error          string `json:"error,omitempty"`
}
