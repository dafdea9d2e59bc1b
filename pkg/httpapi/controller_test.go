package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/controller"
	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/ratelimit"
	"github.com/arakoodev/cliscale/pkg/signer"
	"github.com/arakoodev/cliscale/pkg/storage"
	"github.com/arakoodev/cliscale/pkg/types"
)

type stubOrchestrator struct{}

func (stubOrchestrator) Submit(ctx context.Context, spec *types.WorkerSpec) (string, error) {
	return "worker-" + spec.SessionID, nil
}

func (stubOrchestrator) ResolveEndpoint(ctx context.Context, sessionID, workerName string, ttydPort int, deadline time.Duration) (types.WorkerEndpoint, error) {
	return types.WorkerEndpoint{HostPort: "10.0.0.1:7681"}, nil
}

func (stubOrchestrator) BestEffortDelete(ctx context.Context, sessionID, workerName string) error {
	return nil
}

func newTestControllerRouter(t *testing.T) http.Handler {
	t.Helper()
	dir, err := os.MkdirTemp("", "cliscale-httpapi-test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s, err := signer.LoadOrGenerate("")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}

	cfg := controller.Config{
		APIKey:          "test-key",
		WorkerImage:     "cliscale/worker:test",
		SessionTTL:      time.Hour,
		TokenTTL:        5 * time.Minute,
		ResolveDeadline: time.Second,
		PublicBaseURL:   "https://gateway.example.com",
	}
	svc := controller.New(cfg, store, s, stubOrchestrator{}, ratelimit.New(5, time.Minute), events.NewBroker(), zerolog.Nop())
	return NewControllerRouter(svc)
}

func TestCreateSessionHandlerHappyPath(t *testing.T) {
	router := newTestControllerRouter(t)

	body, _ := json.Marshal(types.CreateSessionRequest{
		CodeURL: "https://github.com/acme/widgets/tree/main/service",
		Command: "npm test",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.CreateSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected non-empty sessionId")
	}
	if resp.WSPath == "" {
		t.Error("expected non-empty wsUrl")
	}
}

func TestCreateSessionHandlerRejectsBadAPIKey(t *testing.T) {
	router := newTestControllerRouter(t)

	body, _ := json.Marshal(types.CreateSessionRequest{CodeURL: "https://x.com/a.zip", Command: "run"})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCreateSessionHandlerRejectsMalformedBody(t *testing.T) {
	router := newTestControllerRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetSessionHandlerUnknownReturnsNotFound(t *testing.T) {
	router := newTestControllerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetSessionHandlerRequiresAuth(t *testing.T) {
	router := newTestControllerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/whatever", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWKSHandlerIsPublic(t *testing.T) {
	router := newTestControllerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc signer.JWKSDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Errorf("expected one key, got %d", len(doc.Keys))
	}
}

func TestHealthzHandlerRespondsOK(t *testing.T) {
	router := newTestControllerRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK && rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unexpected status: %d", rec.Code)
	}
}
