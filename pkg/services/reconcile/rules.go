package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/services/validation"
	"github.com/rs/zerolog"
)

// Every executor is idempotent: it only touches records currently exhibiting
// the targeted defect, so re-running against unchanged data fixes nothing.

func (s *Service) executeRule(ctx context.Context, rule domain.ReconciliationRule) (res domain.ReconciliationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = domain.ReconciliationResult{
				RuleID: rule.ID,
				Error:  fmt.Sprintf("rule panicked: %v", r),
			}
		}
		res.RuleID = rule.ID
		res.Duration = time.Since(start)
	}()

	switch rule.ID {
	case RuleFixOrphanedVehicles:
		res = s.fixOrphanedVehicles(ctx)
	case RuleFixUsernameMismatches:
		res = s.fixUsernameMismatches(ctx)
	case RuleUpdateMissingMetadata:
		res = s.updateMissingMetadata(ctx)
	case RuleFixInactiveWithActivity:
		res = s.fixInactiveWithActivity(ctx)
	case RuleResolveDuplicateDevices:
		res = s.resolveDuplicateDevices(ctx)
	default:
		res = domain.ReconciliationResult{Error: fmt.Sprintf("no executor registered for rule %q", rule.ID)}
	}
	return res
}

func ruleError(err error) domain.ReconciliationResult {
	return domain.ReconciliationResult{Error: err.Error()}
}

// fixOrphanedVehicles links ownerless vehicles to the user whose GP51 username
// matches the vehicle's stored one. Vehicles with no match are counted failed
// but never abort the batch.
func (s *Service) fixOrphanedVehicles(ctx context.Context) domain.ReconciliationResult {
	logger := zerolog.Ctx(ctx)

	orphans, err := s.fleet.ListOrphanedVehicles(ctx)
	if err != nil {
		return ruleError(err)
	}

	res := domain.ReconciliationResult{Success: true, Details: map[string]any{"orphans": len(orphans)}}
	for _, v := range orphans {
		if !v.GP51Username.Valid || v.GP51Username.String == "" {
			continue
		}
		res.RecordsProcessed++

		user, err := s.fleet.FindUserByUsername(ctx, v.GP51Username.String)
		if err != nil {
			logger.Warn().Err(err).Str("device_id", v.DeviceID).Msg("owner lookup failed")
			res.RecordsFailed++
			continue
		}
		if user == nil {
			res.RecordsFailed++
			continue
		}
		if err := s.fleet.AssignVehicleOwner(ctx, v.ID, user.ID); err != nil {
			logger.Warn().Err(err).Str("device_id", v.DeviceID).Msg("owner assignment failed")
			res.RecordsFailed++
			continue
		}
		res.RecordsFixed++
	}
	return res
}

// fixUsernameMismatches overwrites each vehicle's denormalized username with
// the linked user's. The user record is authoritative.
func (s *Service) fixUsernameMismatches(ctx context.Context) domain.ReconciliationResult {
	logger := zerolog.Ctx(ctx)

	mismatches, err := s.fleet.ListUsernameMismatches(ctx)
	if err != nil {
		return ruleError(err)
	}

	res := domain.ReconciliationResult{Success: true}
	for _, m := range mismatches {
		res.RecordsProcessed++
		if err := s.fleet.UpdateVehicleUsername(ctx, m.VehicleID, m.UserUsername); err != nil {
			logger.Warn().Err(err).Str("device_id", m.DeviceID).Msg("username overwrite failed")
			res.RecordsFailed++
			continue
		}
		res.RecordsFixed++
	}
	return res
}

// updateMissingMetadata refreshes a bounded batch of metadata-less vehicles
// from a single GP51 device-list fetch. A failed remote fetch fails every
// candidate record, but the rule itself still ran.
func (s *Service) updateMissingMetadata(ctx context.Context) domain.ReconciliationResult {
	logger := zerolog.Ctx(ctx)

	vehicles, err := s.fleet.ListVehiclesMissingMetadata(ctx, s.settings.MetadataBatchLimit)
	if err != nil {
		return ruleError(err)
	}
	if len(vehicles) == 0 {
		return domain.ReconciliationResult{Success: true}
	}

	res := domain.ReconciliationResult{
		Success:          true,
		RecordsProcessed: len(vehicles),
		Details:          map[string]any{"batch_limit": s.settings.MetadataBatchLimit},
	}

	list, err := s.gp51.QueryMonitorList(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("device list fetch failed; batch counted as failed")
		res.RecordsFailed = len(vehicles)
		res.Details["remote_error"] = err.Error()
		return res
	}

	remote := make(map[string]validation.Vehicle)
	for _, group := range list.Groups {
		for _, d := range group.Devices {
			remote[d.DeviceID] = d
		}
	}

	now := time.Now().UTC()
	for _, v := range vehicles {
		device, ok := remote[v.DeviceID]
		if !ok {
			res.RecordsFailed++
			continue
		}
		blob, err := json.Marshal(map[string]any{
			"deviceid":      device.DeviceID,
			"devicename":    device.DeviceName,
			"devicetype":    device.DeviceType,
			"callat":        device.Latitude,
			"callon":        device.Longitude,
			"speed":         device.Speed,
			"course":        device.Course,
			"updatetime":    device.UpdateTime,
			"simnum":        device.SimNumber,
			"reconciled_at": now.Format(time.RFC3339),
		})
		if err != nil {
			res.RecordsFailed++
			continue
		}
		if err := s.fleet.UpdateVehicleMetadata(ctx, v.ID, blob); err != nil {
			logger.Warn().Err(err).Str("device_id", v.DeviceID).Msg("metadata overwrite failed")
			res.RecordsFailed++
			continue
		}
		res.RecordsFixed++
	}
	return res
}

// fixInactiveWithActivity reactivates vehicles flagged inactive whose GP51
// metadata shows an update inside the recent-activity window.
func (s *Service) fixInactiveWithActivity(ctx context.Context) domain.ReconciliationResult {
	logger := zerolog.Ctx(ctx)

	since := time.Now().Add(-s.settings.RecentActivityWindow)
	vehicles, err := s.fleet.ListInactiveVehiclesWithRecentActivity(ctx, since)
	if err != nil {
		return ruleError(err)
	}

	res := domain.ReconciliationResult{Success: true}
	now := time.Now().UTC()
	for _, v := range vehicles {
		res.RecordsProcessed++
		if err := s.fleet.ReactivateVehicle(ctx, v.ID, now); err != nil {
			logger.Warn().Err(err).Str("device_id", v.DeviceID).Msg("reactivation failed")
			res.RecordsFailed++
			continue
		}
		res.RecordsFixed++
	}
	return res
}

// resolveDuplicateDevices has no safe automatic remediation: which duplicate
// is authoritative needs a human decision, so the rule reports the conflict
// set and explicitly signals manual review instead of pretending success.
func (s *Service) resolveDuplicateDevices(ctx context.Context) domain.ReconciliationResult {
	groups, err := s.fleet.FindDuplicateDeviceIDs(ctx)
	if err != nil {
		return ruleError(err)
	}
	if len(groups) == 0 {
		return domain.ReconciliationResult{Success: true}
	}

	sample := make([]string, 0, len(groups))
	for i, g := range groups {
		if i == 5 {
			break
		}
		sample = append(sample, g.DeviceID)
	}
	return domain.ReconciliationResult{
		RecordsProcessed: len(groups),
		Error:            "duplicate device identifiers require manual resolution",
		Details: map[string]any{
			"strategy":          string(domain.StrategyManualReview),
			"duplicate_groups":  len(groups),
			"sample_device_ids": sample,
		},
	}
}
