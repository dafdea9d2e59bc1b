package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	SessionsCreatedTotal.Add(0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cliscale_sessions_created_total") {
		t.Error("expected sessions_created_total in exposition output")
	}
}

func TestProxyBytesTotalHasDirectionLabel(t *testing.T) {
	ProxyBytesTotal.WithLabelValues("up").Add(10)
	ProxyBytesTotal.WithLabelValues("down").Add(20)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `direction="up"`) || !strings.Contains(body, `direction="down"`) {
		t.Error("expected both direction labels in exposition output")
	}
}
