package consistency

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/models/store"
	"github.com/envio-tools/fleet-atlas/pkg/store/postgres/audit"
	"github.com/rs/zerolog"
)

// Monitor runs a full consistency check on a fixed interval and appends a
// compact snapshot of each pass to the audit log. One tick failing never
// stops the next.
type Monitor struct {
	verifier *Verifier
	audit    audit.Store
	interval time.Duration

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewMonitor(verifier *Verifier, auditStore audit.Store, interval time.Duration) *Monitor {
	return &Monitor{
		verifier: verifier,
		audit:    auditStore,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.quit) })
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("consistency monitoring stopped")
			return
		case <-m.quit:
			logger.Info().Msg("consistency monitoring stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	report, err := m.verifier.PerformFullCheck(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("monitored consistency check failed")
		return
	}

	switch report.DataHealth {
	case domain.HealthPoor, domain.HealthCritical:
		logger.Warn().
			Int("score", report.OverallScore).
			Str("health", string(report.DataHealth)).
			Msg("fleet data health degraded")
	}

	blob, err := json.Marshal(report)
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize consistency report")
		return
	}
	snapshot := store.ConsistencySnapshot{
		OverallScore:    report.OverallScore,
		ChecksPerformed: report.ChecksPerformed,
		ChecksPassed:    report.ChecksPassed,
		ChecksFailed:    report.ChecksFailed,
		DataHealth:      string(report.DataHealth),
		ReportData:      blob,
	}
	if err := m.audit.AppendSnapshot(ctx, snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to persist consistency snapshot")
	}
}
