package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/client"
	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/gateway"
	"github.com/arakoodev/cliscale/pkg/signer"
	"github.com/arakoodev/cliscale/pkg/storage"
	"github.com/arakoodev/cliscale/pkg/types"
)

func newTestGatewayRouter(t *testing.T) (http.Handler, storage.Store, *signer.Signer) {
	t.Helper()
	dir, err := os.MkdirTemp("", "cliscale-httpapi-gateway-test")
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

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.JWKS())
	}))
	t.Cleanup(jwksServer.Close)

	c, err := client.NewClient(client.Config{BaseURL: jwksServer.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	jwks := gateway.NewJWKSClient(c, time.Minute)

	svc := gateway.New(gateway.Config{
		PingInterval:         time.Minute,
		PongTimeout:          5 * time.Second,
		IdleTimeout:          time.Minute,
		BackpressureTimeout:  5 * time.Second,
		ShortResolveDeadline: 200 * time.Millisecond,
	}, store, jwks, events.NewBroker(), zerolog.Nop())

	return NewGatewayRouter(svc), store, s
}

func TestWsHandlerServesTerminalUIOnPlainGet(t *testing.T) {
	router, _, _ := newTestGatewayRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ws/some-session?token=abc", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a content type for the terminal UI response")
	}
}

func TestGatewayHealthzResponds(t *testing.T) {
	router, _, _ := newTestGatewayRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK && rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unexpected status: %d", rec.Code)
	}
}

// TestWsHandlerUpgradesThroughRouter drives a real WebSocket upgrade
// through NewGatewayRouter (metricsMiddleware included), not directly
// against a bare handler. A wrapped ResponseWriter that can't be
// hijacked would fail the upgrade here even though it passes when the
// handler is exercised in isolation.
func TestWsHandlerUpgradesThroughRouter(t *testing.T) {
	router, store, s := newTestGatewayRouter(t)

	workerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(workerServer.Close)
	workerEndpoint := strings.TrimPrefix(workerServer.URL, "http://")

	sessionID := "sess-router-upgrade"
	if err := store.PutSession(&types.Session{
		SessionID:      sessionID,
		OwnerID:        "owner-1",
		WorkerName:     "worker-1",
		WorkerEndpoint: workerEndpoint,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	token, jti, expiresAt, err := s.Issue(sessionID, "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := store.PutToken(&types.TokenRecord{TokenID: jti, SessionID: sessionID, ExpiresAt: expiresAt}); err != nil {
		t.Fatalf("PutToken: %v", err)
	}

	gatewayServer := httptest.NewServer(router)
	t.Cleanup(gatewayServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+strings.TrimPrefix(gatewayServer.URL, "http://")+"/ws/"+sessionID+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial through router: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected echo of 'hello', got %q", string(data))
	}
}
