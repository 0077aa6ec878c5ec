package consistency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/models/store"
	"github.com/envio-tools/fleet-atlas/pkg/services/validation"
	"github.com/envio-tools/fleet-atlas/pkg/store/postgres/fleet"
	"github.com/rs/zerolog"
)

// Settings contains the configurable business thresholds of the check battery.
type Settings struct {
	// MaxVehiclesPerOwner flags users owning more vehicles than this for review.
	MaxVehiclesPerOwner int
	// RecentActivityWindow is how far back a metadata update counts as recent
	// when auditing inactive vehicles.
	RecentActivityWindow time.Duration
	// SampleLimit caps how many offending records a finding retains.
	SampleLimit int
	// MetadataBatchLimit bounds the missing-metadata scan.
	MetadataBatchLimit int
}

func DefaultSettings() Settings {
	return Settings{
		MaxVehiclesPerOwner:  100,
		RecentActivityWindow: 24 * time.Hour,
		SampleLimit:          5,
		MetadataBatchLimit:   50,
	}
}

// Verifier runs the fixed battery of consistency checks against the local
// fleet store and synthesizes a scored report.
type Verifier struct {
	fleet    fleet.Store
	settings Settings
}

func NewVerifier(fleetStore fleet.Store, settings Settings) *Verifier {
	return &Verifier{fleet: fleetStore, settings: settings}
}

// PerformFullCheck runs every check category in fixed order and never fails on
// data defects: a store error inside one category becomes a single
// failed/critical check for that category and the remaining categories still
// run. Only a failure of the verification machinery itself returns an error.
func (v *Verifier) PerformFullCheck(ctx context.Context) (report domain.ConsistencyReport, err error) {
	logger := zerolog.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("consistency check aborted")
			err = fmt.Errorf("consistency check panicked: %v", r)
		}
	}()

	var checks []domain.ConsistencyCheck
	checks = append(checks, v.checkUserVehicleLinks(ctx)...)
	checks = append(checks, v.checkVehicleDataIntegrity(ctx)...)
	checks = append(checks, v.checkReferentialIntegrity(ctx)...)
	checks = append(checks, v.checkDataFormat(ctx)...)
	checks = append(checks, v.checkBusinessRules(ctx)...)

	report = domain.NewReport(time.Now().UTC(), checks, recommendations(checks))

	logger.Info().
		Int("score", report.OverallScore).
		Int("performed", report.ChecksPerformed).
		Int("failed", report.ChecksFailed).
		Str("health", string(report.DataHealth)).
		Msg("consistency check completed")
	return report, nil
}

// categoryFailure converts a store error into the single synthetic check that
// represents a broken category.
func categoryFailure(ct domain.CheckType, category string, err error) domain.ConsistencyCheck {
	return domain.ConsistencyCheck{
		Type:     ct,
		Status:   domain.StatusFailed,
		Message:  fmt.Sprintf("%s check could not run: %v", category, err),
		Details:  map[string]any{"error": err.Error()},
		Severity: domain.SeverityCritical,
	}
}

func (v *Verifier) sampleVehicleIDs(vehicles []store.VehicleRecord) []string {
	n := len(vehicles)
	if n > v.settings.SampleLimit {
		n = v.settings.SampleLimit
	}
	ids := make([]string, 0, n)
	for _, vr := range vehicles[:n] {
		ids = append(ids, vr.DeviceID)
	}
	return ids
}

func (v *Verifier) checkUserVehicleLinks(ctx context.Context) []domain.ConsistencyCheck {
	var checks []domain.ConsistencyCheck

	orphans, err := v.fleet.ListOrphanedVehicles(ctx)
	if err != nil {
		return []domain.ConsistencyCheck{categoryFailure(domain.CheckUserVehicleLink, "user-vehicle link", err)}
	}
	if len(orphans) > 0 {
		checks = append(checks, domain.ConsistencyCheck{
			Type:        domain.CheckUserVehicleLink,
			Status:      domain.StatusFailed,
			Message:     fmt.Sprintf("%d vehicle(s) have no owning user", len(orphans)),
			Details:     map[string]any{"count": len(orphans), "sample_device_ids": v.sampleVehicleIDs(orphans)},
			Severity:    domain.SeverityHigh,
			AutoFixable: true,
		})
	} else {
		checks = append(checks, domain.PassedCheck(domain.CheckUserVehicleLink, "every vehicle is linked to a user"))
	}

	users, err := v.fleet.ListImportedUsersWithoutVehicles(ctx)
	if err != nil {
		return append(checks, categoryFailure(domain.CheckUserVehicleLink, "user-vehicle link", err))
	}
	// Having no vehicles is not necessarily wrong, so this stays informational.
	if len(users) > 0 {
		usernames := make([]string, 0, len(users))
		for i, u := range users {
			if i == v.settings.SampleLimit {
				break
			}
			usernames = append(usernames, u.GP51Username)
		}
		checks = append(checks, domain.ConsistencyCheck{
			Type:     domain.CheckUserVehicleLink,
			Status:   domain.StatusWarning,
			Message:  fmt.Sprintf("%d imported user(s) have no assigned vehicles", len(users)),
			Details:  map[string]any{"count": len(users), "sample_usernames": usernames},
			Severity: domain.SeverityMedium,
		})
	}

	mismatches, err := v.fleet.ListUsernameMismatches(ctx)
	if err != nil {
		return append(checks, categoryFailure(domain.CheckUserVehicleLink, "user-vehicle link", err))
	}
	if len(mismatches) > 0 {
		sample := make([]map[string]string, 0, len(mismatches))
		for i, m := range mismatches {
			if i == v.settings.SampleLimit {
				break
			}
			sample = append(sample, map[string]string{
				"device_id":        m.DeviceID,
				"vehicle_username": m.VehicleUsername,
				"user_username":    m.UserUsername,
			})
		}
		// Divergent usernames on a linked pair indicate silent corruption,
		// not mere absence.
		checks = append(checks, domain.ConsistencyCheck{
			Type:        domain.CheckUserVehicleLink,
			Status:      domain.StatusFailed,
			Message:     fmt.Sprintf("%d vehicle(s) store a username that differs from their linked user", len(mismatches)),
			Details:     map[string]any{"count": len(mismatches), "sample": sample},
			Severity:    domain.SeverityCritical,
			AutoFixable: true,
		})
	} else {
		checks = append(checks, domain.PassedCheck(domain.CheckUserVehicleLink, "linked vehicles match their owner usernames"))
	}

	return checks
}

func (v *Verifier) checkVehicleDataIntegrity(ctx context.Context) []domain.ConsistencyCheck {
	var checks []domain.ConsistencyCheck

	zeroPos, err := v.fleet.ListVehiclesWithZeroPosition(ctx)
	if err != nil {
		return []domain.ConsistencyCheck{categoryFailure(domain.CheckVehiclePosition, "vehicle data integrity", err)}
	}
	if len(zeroPos) > 0 {
		checks = append(checks, domain.ConsistencyCheck{
			Type:     domain.CheckVehiclePosition,
			Status:   domain.StatusWarning,
			Message:  fmt.Sprintf("%d vehicle(s) have missing or (0,0) coordinates", len(zeroPos)),
			Details:  map[string]any{"count": len(zeroPos), "sample_device_ids": v.sampleVehicleIDs(zeroPos)},
			Severity: domain.SeverityMedium,
		})
	} else {
		checks = append(checks, domain.PassedCheck(domain.CheckVehiclePosition, "all vehicles carry plausible coordinates"))
	}

	duplicates, err := v.fleet.FindDuplicateDeviceIDs(ctx)
	if err != nil {
		return append(checks, categoryFailure(domain.CheckDataIntegrity, "vehicle data integrity", err))
	}
	if len(duplicates) > 0 {
		sample := make([]map[string]any, 0, len(duplicates))
		for i, d := range duplicates {
			if i == v.settings.SampleLimit {
				break
			}
			sample = append(sample, map[string]any{"device_id": d.DeviceID, "vehicles": d.Count})
		}
		// Which record is authoritative needs human adjudication.
		checks = append(checks, domain.ConsistencyCheck{
			Type:     domain.CheckDataIntegrity,
			Status:   domain.StatusFailed,
			Message:  fmt.Sprintf("%d device identifier(s) are shared by multiple vehicles", len(duplicates)),
			Details:  map[string]any{"count": len(duplicates), "sample": sample},
			Severity: domain.SeverityCritical,
		})
	} else {
		checks = append(checks, domain.PassedCheck(domain.CheckDataIntegrity, "device identifiers are unique"))
	}

	missing, err := v.fleet.ListVehiclesMissingMetadata(ctx, v.settings.MetadataBatchLimit)
	if err != nil {
		return append(checks, categoryFailure(domain.CheckDataIntegrity, "vehicle data integrity", err))
	}
	if len(missing) > 0 {
		checks = append(checks, domain.ConsistencyCheck{
			Type:        domain.CheckDataIntegrity,
			Status:      domain.StatusWarning,
			Message:     fmt.Sprintf("%d vehicle(s) have no GP51 metadata", len(missing)),
			Details:     map[string]any{"count": len(missing), "sample_device_ids": v.sampleVehicleIDs(missing)},
			Severity:    domain.SeverityMedium,
			AutoFixable: true,
		})
	} else {
		checks = append(checks, domain.PassedCheck(domain.CheckDataIntegrity, "every vehicle carries GP51 metadata"))
	}

	return checks
}

func (v *Verifier) checkReferentialIntegrity(ctx context.Context) []domain.ConsistencyCheck {
	violations, err := v.fleet.CountReferentialViolations(ctx, "vehicles", "envio_user_id", "users", "id")
	if err != nil {
		return []domain.ConsistencyCheck{categoryFailure(domain.CheckReferentialIntegrity, "referential integrity", err)}
	}
	if violations > 0 {
		return []domain.ConsistencyCheck{{
			Type:        domain.CheckReferentialIntegrity,
			Status:      domain.StatusFailed,
			Message:     fmt.Sprintf("%d vehicle(s) reference a user that does not exist", violations),
			Details:     map[string]any{"count": violations, "constraint": "vehicles.envio_user_id -> users.id"},
			Severity:    domain.SeverityCritical,
			AutoFixable: true,
		}}
	}
	return []domain.ConsistencyCheck{
		domain.PassedCheck(domain.CheckReferentialIntegrity, "vehicle owner references resolve to existing users"),
	}
}

func (v *Verifier) checkDataFormat(ctx context.Context) []domain.ConsistencyCheck {
	vehicles, err := v.fleet.ListVehiclesWithMetadata(ctx)
	if err != nil {
		return []domain.ConsistencyCheck{categoryFailure(domain.CheckDataIntegrity, "data format", err)}
	}

	invalidCount := 0
	var samples []map[string]any
	for _, vr := range vehicles {
		var blob any
		if err := json.Unmarshal(vr.Metadata, &blob); err != nil {
			blob = string(vr.Metadata)
		}
		res := validation.ValidateVehicleWithRules(blob)
		if res.Success {
			continue
		}
		invalidCount++
		if len(samples) < v.settings.SampleLimit {
			samples = append(samples, map[string]any{
				"device_id": vr.DeviceID,
				"code":      res.Errors[0].Code,
				"field":     res.Errors[0].Field,
			})
		}
	}

	if invalidCount > 0 {
		return []domain.ConsistencyCheck{{
			Type:        domain.CheckDataIntegrity,
			Status:      domain.StatusWarning,
			Message:     fmt.Sprintf("%d vehicle metadata blob(s) fail schema or business validation", invalidCount),
			Details:     map[string]any{"count": invalidCount, "checked": len(vehicles), "sample": samples},
			Severity:    domain.SeverityMedium,
			AutoFixable: true,
		}}
	}
	return []domain.ConsistencyCheck{
		domain.PassedCheck(domain.CheckDataIntegrity, "stored GP51 metadata matches the expected schema"),
	}
}

func (v *Verifier) checkBusinessRules(ctx context.Context) []domain.ConsistencyCheck {
	var checks []domain.ConsistencyCheck

	since := time.Now().Add(-v.settings.RecentActivityWindow)
	inactive, err := v.fleet.ListInactiveVehiclesWithRecentActivity(ctx, since)
	if err != nil {
		return []domain.ConsistencyCheck{categoryFailure(domain.CheckDataIntegrity, "business rule", err)}
	}
	if len(inactive) > 0 {
		checks = append(checks, domain.ConsistencyCheck{
			Type:        domain.CheckDataIntegrity,
			Status:      domain.StatusWarning,
			Message:     fmt.Sprintf("%d inactive vehicle(s) reported GP51 activity within the last %s", len(inactive), v.settings.RecentActivityWindow),
			Details:     map[string]any{"count": len(inactive), "sample_device_ids": v.sampleVehicleIDs(inactive)},
			Severity:    domain.SeverityMedium,
			AutoFixable: true,
		})
	} else {
		checks = append(checks, domain.PassedCheck(domain.CheckDataIntegrity, "no inactive vehicles show recent activity"))
	}

	overloaded, err := v.fleet.ListOwnersOverVehicleLimit(ctx, v.settings.MaxVehiclesPerOwner)
	if err != nil {
		return append(checks, categoryFailure(domain.CheckUserCount, "business rule", err))
	}
	// Large fleets are flagged for review, not assumed wrong.
	if len(overloaded) > 0 {
		sample := make([]map[string]any, 0, len(overloaded))
		for i, o := range overloaded {
			if i == v.settings.SampleLimit {
				break
			}
			sample = append(sample, map[string]any{"username": o.GP51Username, "vehicles": o.VehicleCount})
		}
		checks = append(checks, domain.ConsistencyCheck{
			Type:     domain.CheckUserCount,
			Status:   domain.StatusWarning,
			Message:  fmt.Sprintf("%d user(s) own more than %d vehicles", len(overloaded), v.settings.MaxVehiclesPerOwner),
			Details:  map[string]any{"count": len(overloaded), "sample": sample},
			Severity: domain.SeverityLow,
		})
	}

	return checks
}

func recommendations(checks []domain.ConsistencyCheck) []string {
	criticalFailures := 0
	autoFixable := 0
	orphanFailure := false
	unhealthy := 0
	for _, c := range checks {
		if c.Status == domain.StatusPassed {
			continue
		}
		unhealthy++
		if c.Status == domain.StatusFailed && c.Severity == domain.SeverityCritical {
			criticalFailures++
		}
		if c.AutoFixable {
			autoFixable++
		}
		if c.Type == domain.CheckUserVehicleLink && c.Status == domain.StatusFailed && c.Severity == domain.SeverityHigh {
			orphanFailure = true
		}
	}

	var recs []string
	if criticalFailures > 0 {
		recs = append(recs, fmt.Sprintf("Address %d critical consistency failure(s) immediately", criticalFailures))
	}
	if autoFixable > 0 {
		recs = append(recs, fmt.Sprintf("Run automatic reconciliation to repair %d auto-fixable issue(s)", autoFixable))
	}
	if orphanFailure {
		recs = append(recs, "Link orphaned vehicles to their GP51 owners or remove stale imports")
	}
	if unhealthy == 0 {
		recs = append(recs, "Local data is consistent with GP51 expectations")
	}
	return recs
}
