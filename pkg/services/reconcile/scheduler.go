package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/rs/zerolog"
)

// Scheduler runs automatic reconciliation on a fixed period. A failed or
// degraded run is logged; the timer always survives to the next tick.
type Scheduler struct {
	service  *Service
	interval time.Duration

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	return &Scheduler{
		service:  service,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduled reconciliation stopped")
			return
		case <-s.quit:
			logger.Info().Msg("scheduled reconciliation stopped")
			return
		case <-ticker.C:
			job := s.service.RunAutomatic(ctx)
			evt := logger.Info()
			if job.Status == domain.JobFailed || job.ErrorCount > 0 {
				evt = logger.Warn()
			}
			evt.
				Str("job_id", job.ID).
				Str("status", string(job.Status)).
				Int("fixed", job.TotalRecordsFixed).
				Int("errors", job.ErrorCount).
				Msg("scheduled reconciliation finished")
		}
	}
}
