package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/apierror"
	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/health"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/storage"
)

// Config holds the Gateway's proxy discipline and short-resolve-poll
// tunables, loaded from pkg/config.Gateway by cmd/gateway.
type Config struct {
	PingInterval        time.Duration
	PongTimeout         time.Duration
	IdleTimeout         time.Duration
	BackpressureTimeout time.Duration

	// ShortResolveDeadline bounds how long Attach polls the Store for a
	// workerEndpoint that was still unset at resolve time before failing
	// with 1011.
	ShortResolveDeadline time.Duration

	// WorkerHealthTimeout bounds the TCP probe Attach runs against the
	// resolved worker endpoint before dialing the terminal WebSocket.
	// Catches a worker whose port is routable in the Store but whose
	// ttyd process hasn't actually bound it yet (or has already died).
	WorkerHealthTimeout time.Duration
}

// dialer opens an outbound WebSocket connection to a worker's terminal
// server. A field rather than a direct websocket.Dial call so tests can
// substitute a fake worker endpoint without a real TCP listener.
type dialer func(ctx context.Context, url string) (*websocket.Conn, *http.Response, error)

func defaultDialer(ctx context.Context, url string) (*websocket.Conn, *http.Response, error) {
	return websocket.Dial(ctx, url, nil)
}

// Service implements the Gateway's attach operation.
type Service struct {
	store  storage.Store
	jwks   *JWKSClient
	cfg    Config
	log    zerolog.Logger
	broker *events.Broker
	dial   dialer
}

// New builds a Service. The Store instance passed in must point at the
// same durable data the Controller writes to.
func New(cfg Config, store storage.Store, jwks *JWKSClient, broker *events.Broker, log zerolog.Logger) *Service {
	return &Service{store: store, jwks: jwks, cfg: cfg, log: log, broker: broker, dial: defaultDialer}
}

// ServeTerminalUI answers the non-upgrade GET on /ws/{sessionId}: static
// bytes for the browser-side terminal, requiring no authentication since
// the page itself carries no secrets. The terminal UI's actual markup is
// out of scope here; this is the minimal placeholder the route needs to
// exist at all.
func (s *Service) ServeTerminalUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<!doctype html><title>cliscale terminal</title><body>connect with a WebSocket client using the token query parameter</body>")
}

// Attach drives the Received→Verified→Consumed→Resolved→Proxying state
// machine for one already-upgraded connection. conn must already be the
// result of a successful websocket.Accept — verification failures are
// reported as WebSocket close codes, never as a second HTTP response.
func (s *Service) Attach(ctx context.Context, conn *websocket.Conn, sessionID, token string) {
	claims, err := verifyToken(ctx, s.jwks, token, sessionID)
	if err != nil {
		s.closeWith(conn, sessionID, err, "invalid token")
		return
	}

	record, err := s.store.ConsumeToken(claims.ID)
	if err != nil {
		metrics.TokensReplayedTotal.Inc()
		if s.broker != nil {
			s.broker.Publish(&events.Event{Type: events.EventTokenReplayed, Message: sessionID})
		}
		_ = conn.Close(websocket.StatusPolicyViolation, "replayed")
		return
	}
	if record.SessionID != sessionID {
		_ = conn.Close(websocket.StatusPolicyViolation, "replayed")
		return
	}
	metrics.TokensConsumedTotal.Inc()
	if s.broker != nil {
		s.broker.Publish(&events.Event{Type: events.EventTokenConsumed, Message: sessionID})
	}

	endpoint, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		s.closeWith(conn, sessionID, err, "endpoint unresolved")
		return
	}

	if err := s.probeWorker(ctx, endpoint); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Str("worker_endpoint", endpoint).Msg("worker health probe failed")
		_ = conn.Close(websocket.StatusInternalError, "worker unhealthy")
		return
	}

	workerConn, _, err := s.dial(ctx, "ws://"+endpoint+"/")
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to dial worker")
		_ = conn.Close(websocket.StatusInternalError, "worker unreachable")
		return
	}

	if s.broker != nil {
		s.broker.Publish(&events.Event{Type: events.EventProxyAttached, Message: sessionID})
	}
	runProxy(ctx, sessionID, conn, workerConn, proxyConfig{
		PingInterval:        s.cfg.PingInterval,
		PongTimeout:         s.cfg.PongTimeout,
		IdleTimeout:         s.cfg.IdleTimeout,
		BackpressureTimeout: s.cfg.BackpressureTimeout,
	}, s.log, s.broker)
}

// resolveSession reads the session row and, if it isn't yet routable,
// polls the Store up to ShortResolveDeadline before giving up — the
// Controller may still be waiting out its own resolution deadline when
// the client attaches.
func (s *Service) resolveSession(ctx context.Context, sessionID string) (string, error) {
	deadline := time.Now().Add(s.cfg.ShortResolveDeadline)
	for {
		session, err := s.store.GetSession(sessionID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", apierror.ErrNotFound
		}
		if err != nil {
			return "", apierror.Wrap(apierror.CodeStoreFailed, "get session", err)
		}
		if session.Routable(time.Now()) {
			return session.WorkerEndpoint, nil
		}
		if time.Now().After(deadline) {
			return "", apierror.New(apierror.CodeOrchestratorFailed, "worker endpoint not resolved")
		}
		select {
		case <-ctx.Done():
			return "", apierror.Wrap(apierror.CodeTransient, "attach cancelled", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// probeWorker runs a TCP health check against the resolved endpoint
// before Attach dials the terminal WebSocket, so a worker whose port
// the Store considers routable but that isn't actually accepting
// connections yet (or has since died) fails fast with a clear reason
// instead of surfacing as a generic dial error.
func (s *Service) probeWorker(ctx context.Context, endpoint string) error {
	timeout := s.cfg.WorkerHealthTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	checker := health.NewTCPChecker(endpoint).WithTimeout(timeout)
	result := checker.Check(ctx)
	if !result.Healthy {
		return apierror.New(apierror.CodeOrchestratorFailed, result.Message)
	}
	return nil
}

func (s *Service) closeWith(conn *websocket.Conn, sessionID string, err error, fallback string) {
	code := apierror.WSCloseCode(apierror.CodeOf(err))
	reason := fallback
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		reason = apiErr.Message
	}
	s.log.Warn().Err(err).Str("session_id", sessionID).Int("close_code", code).Msg("attach failed")
	_ = conn.Close(websocket.StatusCode(code), reason)
}
