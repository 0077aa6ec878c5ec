package domain

import (
	"math"
	"time"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

type CheckType string

const (
	CheckUserVehicleLink      CheckType = "user_vehicle_link"
	CheckVehiclePosition      CheckType = "vehicle_position"
	CheckUserCount            CheckType = "user_count"
	CheckDataIntegrity        CheckType = "data_integrity"
	CheckReferentialIntegrity CheckType = "referential_integrity"
)

type CheckStatus string

const (
	StatusPassed  CheckStatus = "passed"
	StatusFailed  CheckStatus = "failed"
	StatusWarning CheckStatus = "warning"
)

type DataHealth string

const (
	HealthExcellent DataHealth = "excellent"
	HealthGood      DataHealth = "good"
	HealthFair      DataHealth = "fair"
	HealthPoor      DataHealth = "poor"
	HealthCritical  DataHealth = "critical"
)

// ConsistencyCheck is a single audit finding produced by one verification category.
type ConsistencyCheck struct {
	Type        CheckType
	Status      CheckStatus
	Message     string
	Details     map[string]any
	Severity    Severity
	AutoFixable bool
}

// ConsistencyReport aggregates the findings of one full verification pass.
type ConsistencyReport struct {
	Timestamp       time.Time
	OverallScore    int
	ChecksPerformed int
	ChecksPassed    int
	ChecksFailed    int
	Checks          []ConsistencyCheck
	Recommendations []string
	DataHealth      DataHealth
}

// PassedCheck builds the canonical passing finding for a category: passing
// checks carry no operational severity and are never auto-fixable.
func PassedCheck(ct CheckType, message string) ConsistencyCheck {
	return ConsistencyCheck{
		Type:     ct,
		Status:   StatusPassed,
		Message:  message,
		Severity: SeverityLow,
	}
}

// ScoreChecks weights checks passed=1, warning=0.5, failed=0 and scales to 0-100.
// An empty check set is vacuously healthy.
func ScoreChecks(checks []ConsistencyCheck) int {
	if len(checks) == 0 {
		return 100
	}
	weighted := 0.0
	for _, c := range checks {
		switch c.Status {
		case StatusPassed:
			weighted += 1
		case StatusWarning:
			weighted += 0.5
		}
	}
	return int(math.Round(100 * weighted / float64(len(checks))))
}

// DeriveHealth maps a score to a health band. A failed critical check is
// sticky: it forces HealthCritical regardless of the numeric score.
func DeriveHealth(score int, checks []ConsistencyCheck) DataHealth {
	for _, c := range checks {
		if c.Status == StatusFailed && c.Severity == SeverityCritical {
			return HealthCritical
		}
	}
	switch {
	case score >= 95:
		return HealthExcellent
	case score >= 85:
		return HealthGood
	case score >= 70:
		return HealthFair
	default:
		return HealthPoor
	}
}

// NewReport assembles a scored report from an ordered check list.
func NewReport(ts time.Time, checks []ConsistencyCheck, recommendations []string) ConsistencyReport {
	passed, failed := 0, 0
	for _, c := range checks {
		switch c.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		}
	}
	score := ScoreChecks(checks)
	return ConsistencyReport{
		Timestamp:       ts,
		OverallScore:    score,
		ChecksPerformed: len(checks),
		ChecksPassed:    passed,
		ChecksFailed:    failed,
		Checks:          checks,
		Recommendations: recommendations,
		DataHealth:      DeriveHealth(score, checks),
	}
}
