package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/signer"
	"github.com/arakoodev/cliscale/pkg/storage"
	"github.com/arakoodev/cliscale/pkg/types"
)

func newEchoWorker(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func newTestGatewayService(t *testing.T) (*Service, storage.Store, *signer.Signer) {
	t.Helper()
	dir, err := os.MkdirTemp("", "cliscale-gateway-test")
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

	jwks := newTestJWKSClient(t, s)
	cfg := Config{
		PingInterval:         time.Minute,
		PongTimeout:          5 * time.Second,
		IdleTimeout:          time.Minute,
		BackpressureTimeout:  5 * time.Second,
		ShortResolveDeadline: 200 * time.Millisecond,
	}
	svc := New(cfg, store, jwks, events.NewBroker(), zerolog.Nop())
	return svc, store, s
}

func newAttachServer(t *testing.T, svc *Service, sessionID string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		svc.Attach(r.Context(), conn, sessionID, r.URL.Query().Get("token"))
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func TestAttachRelaysBytesToWorker(t *testing.T) {
	svc, store, s := newTestGatewayService(t)

	workerEndpoint := newEchoWorker(t)
	sessionID := "sess-attach-1"
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

	gatewayAddr := newAttachServer(t, svc, sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+gatewayAddr+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
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

func TestAttachRejectsReplayedToken(t *testing.T) {
	svc, store, s := newTestGatewayService(t)

	workerEndpoint := newEchoWorker(t)
	sessionID := "sess-attach-2"
	if err := store.PutSession(&types.Session{
		SessionID:      sessionID,
		OwnerID:        "owner-1",
		WorkerName:     "worker-2",
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

	gatewayAddr := newAttachServer(t, svc, sessionID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, _, err := websocket.Dial(ctx, "ws://"+gatewayAddr+"?token="+token, nil)
	if err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	// consume the handshake fully before the second attempt to keep the
	// race deterministic.
	if err := first.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if _, _, err := first.Read(ctx); err != nil {
		t.Fatalf("first Read: %v", err)
	}
	defer first.Close(websocket.StatusNormalClosure, "test done")

	second, _, err := websocket.Dial(ctx, "ws://"+gatewayAddr+"?token="+token, nil)
	if err != nil {
		t.Fatalf("second Dial: %v", err)
	}
	defer second.Close(websocket.StatusNormalClosure, "test done")

	_, _, err = second.Read(ctx)
	if err == nil {
		t.Fatal("expected the replayed attach to close immediately")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("expected close code %d, got %d", websocket.StatusPolicyViolation, got)
	}
}
