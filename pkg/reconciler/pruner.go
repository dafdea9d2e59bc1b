package reconciler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/storage"
)

// Pruner periodically removes expired sessions and tokens from the
// Durable Store.
type Pruner struct {
	store    storage.Store
	interval time.Duration
	log      zerolog.Logger
	broker   *events.Broker

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPruner creates a Pruner that sweeps store every interval.
func NewPruner(store storage.Store, interval time.Duration, log zerolog.Logger, broker *events.Broker) *Pruner {
	return &Pruner{
		store:    store,
		interval: interval,
		log:      log,
		broker:   broker,
	}
}

// Start begins the sweep loop in a background goroutine. Calling Start
// twice without an intervening Stop is a no-op.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run()
}

// Stop signals the loop to exit and waits for it to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (p *Pruner) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pruner) sweep() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.PrunerDuration)
		metrics.PrunerCyclesTotal.Inc()
	}()

	sessions, tokens, err := p.store.PruneExpired(time.Now().UnixNano())
	if err != nil {
		p.log.Error().Err(err).Msg("prune sweep failed")
		return
	}

	if sessions > 0 || tokens > 0 {
		p.log.Info().Int("sessions", sessions).Int("tokens", tokens).Msg("pruned expired records")
		metrics.SessionsExpiredTotal.Add(float64(sessions))
		if p.broker != nil {
			p.broker.Publish(&events.Event{Type: events.EventSessionExpired})
		}
	}
}
