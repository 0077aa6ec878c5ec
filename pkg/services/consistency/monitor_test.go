package consistency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuditStore is a mock implementation of audit.Store for testing
type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) AppendSnapshot(ctx context.Context, snapshot store.ConsistencySnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func TestMonitor_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a snapshot of the pass", func(t *testing.T) {
		fleet := new(MockFleetStore)
		expectHealthy(fleet)

		auditStore := new(MockAuditStore)
		auditStore.On("AppendSnapshot", ctx, mock.AnythingOfType("store.ConsistencySnapshot")).Return(nil)

		m := NewMonitor(NewVerifier(fleet, DefaultSettings()), auditStore, time.Minute)
		m.tick(ctx)

		auditStore.AssertExpectations(t)
		snapshot := auditStore.Calls[0].Arguments.Get(1).(store.ConsistencySnapshot)
		assert.Equal(t, 100, snapshot.OverallScore)
		assert.Equal(t, "excellent", snapshot.DataHealth)
		assert.Equal(t, snapshot.ChecksPerformed, snapshot.ChecksPassed)

		// The raw report rides along for later inspection.
		var report map[string]any
		require.NoError(t, json.Unmarshal(snapshot.ReportData, &report))
	})

	t.Run("persistence failure does not propagate", func(t *testing.T) {
		fleet := new(MockFleetStore)
		expectHealthy(fleet)

		auditStore := new(MockAuditStore)
		auditStore.On("AppendSnapshot", ctx, mock.Anything).Return(errors.New("audit table missing"))

		m := NewMonitor(NewVerifier(fleet, DefaultSettings()), auditStore, time.Minute)
		assert.NotPanics(t, func() { m.tick(ctx) })
	})
}

func TestMonitor_StartStop(t *testing.T) {
	fleet := new(MockFleetStore)
	expectHealthy(fleet)

	m := NewMonitor(NewVerifier(fleet, DefaultSettings()), new(MockAuditStore), time.Hour)
	m.Start(context.Background())
	m.Stop()
}
