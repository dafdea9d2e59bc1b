package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/storage"
	"github.com/arakoodev/cliscale/pkg/types"
)

// EndpointResolver resolves a worker's network endpoint. *orchestrator.Driver
// satisfies this.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, sessionID, workerName string, ttydPort int, deadline time.Duration) (types.WorkerEndpoint, error)
}

// Resolver fills in a session's WorkerEndpoint once the orchestrator has
// assigned the worker container a routable address.
type Resolver struct {
	driver   EndpointResolver
	store    storage.Store
	deadline time.Duration
	log      zerolog.Logger
	broker   *events.Broker
}

// NewResolver builds a Resolver bounded to wait at most deadline for an
// endpoint before giving up and leaving the session pending.
func NewResolver(driver EndpointResolver, store storage.Store, deadline time.Duration, log zerolog.Logger, broker *events.Broker) *Resolver {
	return &Resolver{driver: driver, store: store, deadline: deadline, log: log, broker: broker}
}

// Resolve blocks until the worker's endpoint is known or deadline
// elapses, then persists whatever it found. Callers that don't want to
// block the request that created the session should invoke this with
// go r.Resolve(...) and return a "pending" status immediately.
func (r *Resolver) Resolve(ctx context.Context, sessionID, workerName string, ttydPort int) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EndpointResolveDuration)

	endpoint, err := r.driver.ResolveEndpoint(ctx, sessionID, workerName, ttydPort, r.deadline)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("endpoint resolution failed")
		return
	}
	if endpoint.Pending {
		r.log.Warn().Str("session_id", sessionID).Msg("endpoint resolution timed out, session remains pending")
		return
	}

	if err := r.store.UpdateSessionEndpoint(sessionID, endpoint.HostPort); err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist resolved endpoint")
		return
	}

	r.log.Info().Str("session_id", sessionID).Str("endpoint", endpoint.HostPort).Msg("worker endpoint resolved")
	if r.broker != nil {
		r.broker.Publish(&events.Event{Type: events.EventSessionReady, Message: sessionID})
	}
}
