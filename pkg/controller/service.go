package controller

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/apierror"
	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/ratelimit"
	"github.com/arakoodev/cliscale/pkg/reconciler"
	"github.com/arakoodev/cliscale/pkg/signer"
	"github.com/arakoodev/cliscale/pkg/storage"
	"github.com/arakoodev/cliscale/pkg/types"
)

// ttydPort is the fixed terminal server port every worker listens on, per
// the worker environment contract.
const ttydPort = 7681

// Orchestrator is the subset of *orchestrator.Driver the Controller needs:
// submit a worker, resolve its endpoint, and best-effort tear it down.
// *orchestrator.Driver satisfies this.
type Orchestrator interface {
	reconciler.EndpointResolver
	Submit(ctx context.Context, spec *types.WorkerSpec) (workerName string, err error)
	BestEffortDelete(ctx context.Context, sessionID, workerName string) error
}

// Config holds the Session Controller's tunables, loaded from
// pkg/config.Controller by cmd/controller.
type Config struct {
	APIKey             string
	WorkerImage        string
	OrchNamespace      string
	SessionTTL         time.Duration
	TokenTTL           time.Duration
	ResolveDeadline    time.Duration
	CollectAfterFinish time.Duration
	PublicBaseURL      string
}

// Service implements the Session Controller's operations: create_session,
// get_session, and jwks.
type Service struct {
	cfg          Config
	store        storage.Store
	signer       *signer.Signer
	orchestrator Orchestrator
	limiter      *ratelimit.Limiter
	resolver     *reconciler.Resolver
	broker       *events.Broker
	log          zerolog.Logger
}

// New wires a Service from its collaborators. The TTL pruner is not part
// of the Service; cmd/controller builds and starts it separately with
// reconciler.NewPruner.
func New(cfg Config, store storage.Store, signerInst *signer.Signer, driver Orchestrator, limiter *ratelimit.Limiter, broker *events.Broker, log zerolog.Logger) *Service {
	resolver := reconciler.NewResolver(driver, store, cfg.ResolveDeadline, log, broker)
	return &Service{
		cfg:          cfg,
		store:        store,
		signer:       signerInst,
		orchestrator: driver,
		limiter:      limiter,
		resolver:     resolver,
		broker:       broker,
		log:          log,
	}
}

// Authenticate reports whether apiKey byte-equals the configured shared
// secret, using a constant-time comparison so response timing cannot leak
// how many leading bytes matched.
func (s *Service) Authenticate(apiKey string) bool {
	if apiKey == "" || s.cfg.APIKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.cfg.APIKey)) == 1
}

// CreateSession admits a new job request: authenticates, rate-limits,
// validates, submits a worker, records the session and token durably, and
// resolves the worker's endpoint up to cfg.ResolveDeadline before
// responding.
func (s *Service) CreateSession(ctx context.Context, apiKey, callerIdentity string, req *types.CreateSessionRequest) (*types.CreateSessionResponse, error) {
	if !s.Authenticate(apiKey) {
		return nil, apierror.ErrUnauthorized
	}
	if !s.limiter.Allow(callerIdentity) {
		return nil, apierror.ErrRateLimited
	}
	if err := validateCreateSessionRequest(req); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(s.cfg.SessionTTL)

	spec := &types.WorkerSpec{
		SessionID:          sessionID,
		CodeURL:            req.CodeURL,
		Command:            req.Command,
		InstallCmd:         req.InstallCmd,
		Prompt:             req.Prompt,
		TTYDPort:           ttydPort,
		ExitOnJob:          true,
		Image:              s.cfg.WorkerImage,
		Namespace:          s.cfg.OrchNamespace,
		ActiveDeadline:     s.cfg.SessionTTL,
		CollectAfterFinish: s.cfg.CollectAfterFinish,
	}

	submitTimer := metrics.NewTimer()
	workerName, err := s.orchestrator.Submit(ctx, spec)
	submitTimer.ObserveDurationVec(metrics.OrchestratorOpDuration, "submit")
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeOrchestratorFailed, "submit worker", err)
	}

	session := &types.Session{
		SessionID:  sessionID,
		OwnerID:    callerIdentity,
		WorkerName: workerName,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}
	if err := s.store.PutSession(session); err != nil {
		s.bestEffortDelete(ctx, sessionID, workerName)
		return nil, apierror.Wrap(apierror.CodeStoreFailed, "put session", err)
	}
	metrics.SessionsCreatedTotal.Inc()
	s.broker.Publish(&events.Event{Type: events.EventSessionCreated, Message: sessionID})

	tokenTTL := s.cfg.TokenTTL
	if tokenTTL > s.cfg.SessionTTL {
		tokenTTL = s.cfg.SessionTTL
	}
	token, jti, tokenExpiresAt, err := s.signer.Issue(sessionID, callerIdentity, tokenTTL)
	if err != nil {
		s.bestEffortDelete(ctx, sessionID, workerName)
		return nil, apierror.Wrap(apierror.CodeStoreFailed, "issue token", err)
	}
	if err := s.store.PutToken(&types.TokenRecord{TokenID: jti, SessionID: sessionID, ExpiresAt: tokenExpiresAt}); err != nil {
		s.bestEffortDelete(ctx, sessionID, workerName)
		return nil, apierror.Wrap(apierror.CodeStoreFailed, "put token", err)
	}
	metrics.TokensIssuedTotal.Inc()
	s.broker.Publish(&events.Event{Type: events.EventTokenIssued, Message: sessionID})

	s.resolver.Resolve(ctx, sessionID, workerName, ttydPort)

	status := types.SessionStatusPending
	if resolved, err := s.store.GetSession(sessionID); err == nil {
		status = resolved.Status()
	}

	wsPath := "/ws/" + sessionID
	return &types.CreateSessionResponse{
		SessionID:   sessionID,
		WSPath:      wsPath,
		Token:       token,
		TerminalURL: fmt.Sprintf("%s%s?token=%s", s.cfg.PublicBaseURL, wsPath, token),
		Status:      string(status),
	}, nil
}

// GetSession returns the read-only summary of a session, or NotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*types.SessionSummary, error) {
	session, err := s.store.GetSession(sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierror.ErrNotFound
	}
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeStoreFailed, "get session", err)
	}
	return &types.SessionSummary{
		SessionID: session.SessionID,
		OwnerID:   session.OwnerID,
		Status:    string(session.Status()),
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// JWKS returns the current published key set.
func (s *Service) JWKS() signer.JWKSDocument {
	return s.signer.JWKS()
}

// CheckStore performs a cheap Store round-trip, the SELECT-1 equivalent
// healthz requires. Reading an unset fingerprint is a successful round
// trip: storage.ErrNotFound means the Store answered, not that it failed.
func (s *Service) CheckStore() error {
	_, err := s.store.GetSigningKeyFingerprint()
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// bestEffortDelete tears down a worker after a Store failure following
// submission, swallowing the error beyond logging — the Orchestrator's own
// TTL is the safety net if this also fails.
func (s *Service) bestEffortDelete(ctx context.Context, sessionID, workerName string) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.orchestrator.BestEffortDelete(deleteCtx, sessionID, workerName); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Str("worker_name", workerName).Msg("best-effort delete failed after store error")
	}
	_ = ctx
}
