package gp51

import (
	"context"
	"sync"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/services/validation"
	"github.com/rs/zerolog"
)

type PositionListener func([]validation.Position)

type AlertListener func([]Alert)

// Poller periodically pulls last-known positions for a device set and fans
// batches out to registered listeners. A failed tick is logged and skipped;
// it never stops the loop.
type Poller struct {
	client   Client
	interval time.Duration
	alerts   AlertSettings

	mu                sync.Mutex
	deviceIDs         []string
	positionListeners []PositionListener
	alertListeners    []AlertListener

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewPoller(client Client, interval time.Duration, alerts AlertSettings) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
		alerts:   alerts,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Poller) SetDevices(deviceIDs []string) {
	p.mu.Lock()
	p.deviceIDs = append([]string(nil), deviceIDs...)
	p.mu.Unlock()
}

func (p *Poller) Subscribe(l PositionListener) {
	p.mu.Lock()
	p.positionListeners = append(p.positionListeners, l)
	p.mu.Unlock()
}

func (p *Poller) SubscribeAlerts(l AlertListener) {
	p.mu.Lock()
	p.alertListeners = append(p.alertListeners, l)
	p.mu.Unlock()
}

func (p *Poller) Start(ctx context.Context) {
	go p.loop(ctx)
}

func (p *Poller) Stop() {
	p.once.Do(func() { close(p.quit) })
	<-p.done
}

func (p *Poller) loop(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("position polling stopped")
			return
		case <-p.quit:
			logger.Info().Msg("position polling stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	p.mu.Lock()
	deviceIDs := append([]string(nil), p.deviceIDs...)
	positionListeners := append([]PositionListener(nil), p.positionListeners...)
	alertListeners := append([]AlertListener(nil), p.alertListeners...)
	p.mu.Unlock()

	positions, err := p.client.GetPositions(ctx, deviceIDs)
	if err != nil {
		logger.Error().Err(err).Msg("position poll failed")
		return
	}
	if len(positions) == 0 {
		return
	}

	for _, l := range positionListeners {
		l(positions)
	}

	if alerts := DeriveAlerts(positions, p.alerts, time.Now()); len(alerts) > 0 {
		logger.Warn().Int("alerts", len(alerts)).Msg("position batch raised alerts")
		for _, l := range alertListeners {
			l(alerts)
		}
	}
}
