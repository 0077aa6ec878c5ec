package adapters

import (
	"github.com/envio-tools/fleet-atlas/pkg/models/api"
	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
)

func MapSeverityDomainToApi(s domain.Severity) api.Severity {
	switch s {
	case domain.SeverityLow:
		return api.SeverityLow
	case domain.SeverityMedium:
		return api.SeverityMedium
	case domain.SeverityHigh:
		return api.SeverityHigh
	case domain.SeverityCritical:
		return api.SeverityCritical
	default:
		return api.SeverityLow
	}
}

func MapConsistencyCheckDomainToApi(c domain.ConsistencyCheck) api.ConsistencyCheck {
	return api.ConsistencyCheck{
		CheckType:   string(c.Type),
		Status:      string(c.Status),
		Message:     c.Message,
		Details:     c.Details,
		Severity:    MapSeverityDomainToApi(c.Severity),
		AutoFixable: c.AutoFixable,
	}
}

func MapConsistencyReportDomainToApi(r domain.ConsistencyReport) api.ConsistencyReport {
	res := api.ConsistencyReport{
		Timestamp:       r.Timestamp,
		OverallScore:    r.OverallScore,
		ChecksPerformed: r.ChecksPerformed,
		ChecksPassed:    r.ChecksPassed,
		ChecksFailed:    r.ChecksFailed,
		Checks:          make([]api.ConsistencyCheck, 0, len(r.Checks)),
		Recommendations: r.Recommendations,
		DataHealth:      string(r.DataHealth),
	}
	for _, c := range r.Checks {
		res.Checks = append(res.Checks, MapConsistencyCheckDomainToApi(c))
	}
	return res
}
