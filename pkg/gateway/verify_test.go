package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arakoodev/cliscale/pkg/client"
	"github.com/arakoodev/cliscale/pkg/signer"
)

func newTestJWKSClient(t *testing.T, s *signer.Signer) *JWKSClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.JWKS())
	}))
	t.Cleanup(server.Close)

	c, err := client.NewClient(client.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewJWKSClient(c, time.Minute)
}

func TestVerifyTokenAcceptsValidToken(t *testing.T) {
	s, err := signer.LoadOrGenerate("")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	token, _, _, err := s.Issue("sess-1", "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	jwks := newTestJWKSClient(t, s)
	claims, err := verifyToken(context.Background(), jwks, token, "sess-1")
	if err != nil {
		t.Fatalf("verifyToken: %v", err)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("unexpected sid: %s", claims.SessionID)
	}
	if claims.Subject != "owner-1" {
		t.Errorf("unexpected sub: %s", claims.Subject)
	}
}

func TestVerifyTokenRejectsSessionMismatch(t *testing.T) {
	s, err := signer.LoadOrGenerate("")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	token, _, _, err := s.Issue("sess-1", "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	jwks := newTestJWKSClient(t, s)
	if _, err := verifyToken(context.Background(), jwks, token, "sess-2"); err == nil {
		t.Error("expected error on session id mismatch")
	}
}

func TestVerifyTokenRejectsExpiredToken(t *testing.T) {
	s, err := signer.LoadOrGenerate("")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	token, _, _, err := s.Issue("sess-1", "owner-1", -time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	jwks := newTestJWKSClient(t, s)
	if _, err := verifyToken(context.Background(), jwks, token, "sess-1"); err == nil {
		t.Error("expected error on expired token")
	}
}

func TestVerifyTokenRejectsUnknownKid(t *testing.T) {
	s, err := signer.LoadOrGenerate("")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	token, _, _, err := s.Issue("sess-1", "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// a different signer publishes an unrelated key set, so the kid in
	// the token's header can't be found.
	other, err := signer.LoadOrGenerate("")
	if err != nil {
		t.Fatalf("LoadOrGenerate: %v", err)
	}
	jwks := newTestJWKSClient(t, other)
	if _, err := verifyToken(context.Background(), jwks, token, "sess-1"); err == nil {
		t.Error("expected error for token signed by unknown key")
	}
}
