package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowAdmitsUpToBurstThenDenies(t *testing.T) {
	l := New(5, 60*time.Second)

	for i := 0; i < 5; i++ {
		if !l.Allow("caller-1") {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.Allow("caller-1") {
		t.Error("6th request within the window should be denied")
	}
}

func TestAllowIsPerIdentity(t *testing.T) {
	l := New(1, 60*time.Second)

	if !l.Allow("caller-a") {
		t.Fatal("first request for caller-a should be admitted")
	}
	if !l.Allow("caller-b") {
		t.Error("caller-b has its own budget and should be admitted")
	}
	if l.Allow("caller-a") {
		t.Error("caller-a should be denied a second request in the same window")
	}
}

func TestCleanupEvictsIdleIdentities(t *testing.T) {
	l := New(5, 60*time.Second)
	l.maxIdle = 0 // force immediate eviction for the test
	l.Allow("caller-1")

	time.Sleep(time.Millisecond)
	removed := l.Cleanup()
	if removed != 1 {
		t.Errorf("expected 1 entry evicted, got %d", removed)
	}
}

func TestIdentityFromRequestPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	r.RemoteAddr = "10.0.0.1:54321"

	if got := IdentityFromRequest(r); got != "203.0.113.5" {
		t.Errorf("expected 203.0.113.5, got %s", got)
	}
}

func TestIdentityFromRequestFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.9:1234"

	if got := IdentityFromRequest(r); got != "198.51.100.9" {
		t.Errorf("expected 198.51.100.9, got %s", got)
	}
}
