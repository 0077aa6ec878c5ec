package consistency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/models/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFleetStore is a mock implementation of fleet.Store for testing
type MockFleetStore struct {
	mock.Mock
}

func (m *MockFleetStore) CountUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFleetStore) CountVehicles(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFleetStore) ListOrphanedVehicles(ctx context.Context) ([]store.VehicleRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.VehicleRecord), args.Error(1)
}

func (m *MockFleetStore) ListImportedUsersWithoutVehicles(ctx context.Context) ([]store.UserRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.UserRecord), args.Error(1)
}

func (m *MockFleetStore) ListUsernameMismatches(ctx context.Context) ([]store.UsernameMismatch, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.UsernameMismatch), args.Error(1)
}

func (m *MockFleetStore) ListVehiclesWithZeroPosition(ctx context.Context) ([]store.VehicleRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.VehicleRecord), args.Error(1)
}

func (m *MockFleetStore) FindDuplicateDeviceIDs(ctx context.Context) ([]store.DuplicateDeviceGroup, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.DuplicateDeviceGroup), args.Error(1)
}

func (m *MockFleetStore) ListVehiclesMissingMetadata(ctx context.Context, limit int) ([]store.VehicleRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]store.VehicleRecord), args.Error(1)
}

func (m *MockFleetStore) ListVehiclesWithMetadata(ctx context.Context) ([]store.VehicleRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.VehicleRecord), args.Error(1)
}

func (m *MockFleetStore) ListInactiveVehiclesWithRecentActivity(ctx context.Context, since time.Time) ([]store.VehicleRecord, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]store.VehicleRecord), args.Error(1)
}

func (m *MockFleetStore) ListOwnersOverVehicleLimit(ctx context.Context, limit int) ([]store.OwnerVehicleCount, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]store.OwnerVehicleCount), args.Error(1)
}

func (m *MockFleetStore) CountReferentialViolations(ctx context.Context, childTable, childColumn, parentTable, parentColumn string) (int64, error) {
	args := m.Called(ctx, childTable, childColumn, parentTable, parentColumn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFleetStore) FindUserByUsername(ctx context.Context, username string) (*store.UserRecord, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.UserRecord), args.Error(1)
}

func (m *MockFleetStore) AssignVehicleOwner(ctx context.Context, vehicleID, userID string) error {
	args := m.Called(ctx, vehicleID, userID)
	return args.Error(0)
}

func (m *MockFleetStore) UpdateVehicleUsername(ctx context.Context, vehicleID, username string) error {
	args := m.Called(ctx, vehicleID, username)
	return args.Error(0)
}

func (m *MockFleetStore) UpdateVehicleMetadata(ctx context.Context, vehicleID string, metadata []byte) error {
	args := m.Called(ctx, vehicleID, metadata)
	return args.Error(0)
}

func (m *MockFleetStore) ReactivateVehicle(ctx context.Context, vehicleID string, at time.Time) error {
	args := m.Called(ctx, vehicleID, at)
	return args.Error(0)
}

// expectHealthy registers clean-system responses for every check query except
// those a test wants to stub itself.
func expectHealthy(m *MockFleetStore, except ...string) {
	skip := make(map[string]bool, len(except))
	for _, name := range except {
		skip[name] = true
	}
	if !skip["ListOrphanedVehicles"] {
		m.On("ListOrphanedVehicles", mock.Anything).Return([]store.VehicleRecord{}, nil)
	}
	if !skip["ListImportedUsersWithoutVehicles"] {
		m.On("ListImportedUsersWithoutVehicles", mock.Anything).Return([]store.UserRecord{}, nil)
	}
	if !skip["ListUsernameMismatches"] {
		m.On("ListUsernameMismatches", mock.Anything).Return([]store.UsernameMismatch{}, nil)
	}
	if !skip["ListVehiclesWithZeroPosition"] {
		m.On("ListVehiclesWithZeroPosition", mock.Anything).Return([]store.VehicleRecord{}, nil)
	}
	if !skip["FindDuplicateDeviceIDs"] {
		m.On("FindDuplicateDeviceIDs", mock.Anything).Return([]store.DuplicateDeviceGroup{}, nil)
	}
	if !skip["ListVehiclesMissingMetadata"] {
		m.On("ListVehiclesMissingMetadata", mock.Anything, mock.AnythingOfType("int")).Return([]store.VehicleRecord{}, nil)
	}
	if !skip["ListVehiclesWithMetadata"] {
		m.On("ListVehiclesWithMetadata", mock.Anything).Return([]store.VehicleRecord{}, nil)
	}
	if !skip["ListInactiveVehiclesWithRecentActivity"] {
		m.On("ListInactiveVehiclesWithRecentActivity", mock.Anything, mock.AnythingOfType("time.Time")).
			Return([]store.VehicleRecord{}, nil)
	}
	if !skip["ListOwnersOverVehicleLimit"] {
		m.On("ListOwnersOverVehicleLimit", mock.Anything, mock.AnythingOfType("int")).
			Return([]store.OwnerVehicleCount{}, nil)
	}
	if !skip["CountReferentialViolations"] {
		m.On("CountReferentialViolations", mock.Anything, "vehicles", "envio_user_id", "users", "id").
			Return(int64(0), nil)
	}
}

func findChecks(report domain.ConsistencyReport, status domain.CheckStatus) []domain.ConsistencyCheck {
	var out []domain.ConsistencyCheck
	for _, c := range report.Checks {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

func TestVerifier_PerformFullCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("clean system scores 100 and excellent", func(t *testing.T) {
		m := new(MockFleetStore)
		expectHealthy(m)
		v := NewVerifier(m, DefaultSettings())

		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		assert.Equal(t, 100, report.OverallScore)
		assert.Equal(t, domain.HealthExcellent, report.DataHealth)
		assert.Greater(t, report.ChecksPerformed, 0)
		assert.Equal(t, report.ChecksPerformed, report.ChecksPassed)
		assert.Zero(t, report.ChecksFailed)
		assert.Contains(t, report.Recommendations, "Local data is consistent with GP51 expectations")
		m.AssertExpectations(t)
	})

	t.Run("orphaned vehicles produce a fixable high-severity failure", func(t *testing.T) {
		m := new(MockFleetStore)
		expectHealthy(m, "ListOrphanedVehicles")
		m.On("ListOrphanedVehicles", mock.Anything).Return([]store.VehicleRecord{
			{ID: "v1", DeviceID: "DEV001"},
			{ID: "v2", DeviceID: "DEV002"},
		}, nil)

		v := NewVerifier(m, DefaultSettings())
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		failed := findChecks(report, domain.StatusFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, domain.CheckUserVehicleLink, failed[0].Type)
		assert.Equal(t, domain.SeverityHigh, failed[0].Severity)
		assert.True(t, failed[0].AutoFixable)
		assert.Equal(t, 2, failed[0].Details["count"])
		assert.Less(t, report.OverallScore, 100)
	})

	t.Run("duplicate device ids force critical health", func(t *testing.T) {
		m := new(MockFleetStore)
		expectHealthy(m, "FindDuplicateDeviceIDs")
		m.On("FindDuplicateDeviceIDs", mock.Anything).Return([]store.DuplicateDeviceGroup{
			{DeviceID: "DEV001", Count: 2, VehicleIDs: []string{"v1", "v2"}},
		}, nil)

		v := NewVerifier(m, DefaultSettings())
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		assert.Equal(t, domain.HealthCritical, report.DataHealth)
		failed := findChecks(report, domain.StatusFailed)
		require.Len(t, failed, 1)
		assert.False(t, failed[0].AutoFixable)
	})

	t.Run("category store failure becomes one critical check, others still run", func(t *testing.T) {
		m := new(MockFleetStore)
		// The link category aborts on the first query, so its follow-up
		// queries are never issued.
		expectHealthy(m, "ListOrphanedVehicles", "ListImportedUsersWithoutVehicles", "ListUsernameMismatches")
		m.On("ListOrphanedVehicles", mock.Anything).Return([]store.VehicleRecord{}, errors.New("connection reset"))

		v := NewVerifier(m, DefaultSettings())
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)

		failed := findChecks(report, domain.StatusFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, domain.CheckUserVehicleLink, failed[0].Type)
		assert.Equal(t, domain.SeverityCritical, failed[0].Severity)
		assert.Contains(t, failed[0].Message, "could not run")

		assert.Greater(t, report.ChecksPerformed, 1)
		assert.Equal(t, domain.HealthCritical, report.DataHealth)
	})

	t.Run("invalid stored metadata is surfaced by the format check", func(t *testing.T) {
		m := new(MockFleetStore)
		expectHealthy(m, "ListVehiclesWithMetadata")
		m.On("ListVehiclesWithMetadata", mock.Anything).Return([]store.VehicleRecord{
			{ID: "v1", DeviceID: "DEV001", Metadata: []byte(`{"deviceid":"DEV001","devicename":"Truck","callat":0,"callon":0}`)},
			{ID: "v2", DeviceID: "DEV002", Metadata: []byte(`{"deviceid":"DEV002","devicename":"Van","callat":48.1,"callon":11.6}`)},
		}, nil)

		v := NewVerifier(m, DefaultSettings())
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		warnings := findChecks(report, domain.StatusWarning)
		require.Len(t, warnings, 1)
		assert.Equal(t, 1, warnings[0].Details["count"])
		assert.Equal(t, 2, warnings[0].Details["checked"])
	})

	t.Run("owners over the limit only warn", func(t *testing.T) {
		m := new(MockFleetStore)
		expectHealthy(m, "ListOwnersOverVehicleLimit")
		m.On("ListOwnersOverVehicleLimit", mock.Anything, 100).Return([]store.OwnerVehicleCount{
			{UserID: "u1", GP51Username: "bigfleet", VehicleCount: 150},
		}, nil)

		v := NewVerifier(m, DefaultSettings())
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		assert.Zero(t, report.ChecksFailed)
		warnings := findChecks(report, domain.StatusWarning)
		require.Len(t, warnings, 1)
		assert.Equal(t, domain.CheckUserCount, warnings[0].Type)
		assert.Equal(t, domain.SeverityLow, warnings[0].Severity)
	})

	t.Run("username mismatch details carry a bounded sample", func(t *testing.T) {
		mismatches := make([]store.UsernameMismatch, 10)
		for i := range mismatches {
			mismatches[i] = store.UsernameMismatch{
				VehicleID:       "v",
				DeviceID:        "DEV",
				VehicleUsername: "stale",
				UserUsername:    "fresh",
			}
		}
		m := new(MockFleetStore)
		expectHealthy(m, "ListUsernameMismatches")
		m.On("ListUsernameMismatches", mock.Anything).Return(mismatches, nil)

		settings := DefaultSettings()
		settings.SampleLimit = 3
		v := NewVerifier(m, settings)
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		failed := findChecks(report, domain.StatusFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, 10, failed[0].Details["count"])
		sample := failed[0].Details["sample"].([]map[string]string)
		assert.Len(t, sample, 3)
	})

	t.Run("imported users without vehicles warn only when present", func(t *testing.T) {
		m := new(MockFleetStore)
		expectHealthy(m, "ListImportedUsersWithoutVehicles")
		m.On("ListImportedUsersWithoutVehicles", mock.Anything).Return([]store.UserRecord{
			{ID: "u1", GP51Username: "importeduser"},
		}, nil)

		v := NewVerifier(m, DefaultSettings())
		report, err := v.PerformFullCheck(ctx)

		require.NoError(t, err)
		warnings := findChecks(report, domain.StatusWarning)
		require.Len(t, warnings, 1)
		assert.Equal(t, domain.CheckUserVehicleLink, warnings[0].Type)
		assert.Zero(t, report.ChecksFailed)
	})
}

func TestVerifier_Recommendations(t *testing.T) {
	t.Run("auto-fixable findings suggest reconciliation", func(t *testing.T) {
		checks := []domain.ConsistencyCheck{
			{Status: domain.StatusFailed, Severity: domain.SeverityHigh, Type: domain.CheckUserVehicleLink, AutoFixable: true},
		}
		recs := recommendations(checks)
		assert.Contains(t, recs, "Run automatic reconciliation to repair 1 auto-fixable issue(s)")
		assert.Contains(t, recs, "Link orphaned vehicles to their GP51 owners or remove stale imports")
	})

	t.Run("critical failures lead the list", func(t *testing.T) {
		checks := []domain.ConsistencyCheck{
			{Status: domain.StatusFailed, Severity: domain.SeverityCritical, Type: domain.CheckDataIntegrity},
		}
		recs := recommendations(checks)
		require.NotEmpty(t, recs)
		assert.Equal(t, "Address 1 critical consistency failure(s) immediately", recs[0])
	})
}
