package adapters

import (
	"github.com/envio-tools/fleet-atlas/pkg/models/api"
	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
)

func MapReconciliationRuleDomainToApi(r domain.ReconciliationRule) api.ReconciliationRule {
	severities := make([]api.Severity, 0, len(r.Severities))
	for _, s := range r.Severities {
		severities = append(severities, MapSeverityDomainToApi(s))
	}
	return api.ReconciliationRule{
		ID:          r.ID,
		CheckType:   string(r.CheckType),
		Severities:  severities,
		AutoExecute: r.AutoExecute,
		Strategy:    string(r.Strategy),
	}
}

func MapReconciliationResultDomainToApi(r domain.ReconciliationResult) api.ReconciliationResult {
	return api.ReconciliationResult{
		RuleID:           r.RuleID,
		Success:          r.Success,
		RecordsProcessed: r.RecordsProcessed,
		RecordsFixed:     r.RecordsFixed,
		RecordsFailed:    r.RecordsFailed,
		DurationMs:       r.Duration.Milliseconds(),
		Details:          r.Details,
		Error:            r.Error,
	}
}

func MapReconciliationJobDomainToApi(j domain.ReconciliationJob) api.ReconciliationJob {
	res := api.ReconciliationJob{
		ID:                    j.ID,
		Status:                string(j.Status),
		StartedAt:             j.StartedAt,
		CompletedAt:           j.CompletedAt,
		Results:               make([]api.ReconciliationResult, 0, len(j.Results)),
		TotalRecordsProcessed: j.TotalRecordsProcessed,
		TotalRecordsFixed:     j.TotalRecordsFixed,
		ErrorCount:            j.ErrorCount,
	}
	for _, r := range j.Results {
		res.Results = append(res.Results, MapReconciliationResultDomainToApi(r))
	}
	return res
}
