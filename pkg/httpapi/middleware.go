package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/arakoodev/cliscale/pkg/metrics"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the wrapped ResponseWriter so a WebSocket
// upgrade further down the handler chain can still take over the raw
// connection through this wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("httpapi: underlying ResponseWriter does not support hijacking")
	}
	return hijacker.Hijack()
}

// Unwrap exposes the wrapped ResponseWriter to callers that use
// http.ResponseController (Go 1.20+'s way of reaching Hijacker/Flusher
// through wrapper types) instead of a direct type assertion.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// routeTemplate returns the matched route's path template (e.g.
// "/api/sessions/{id}") rather than the literal request path, so the
// HTTP metrics don't explode into one label per session id.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tmpl
}

// metricsMiddleware records request counts and latency labeled by the
// matched route template and response status.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.HTTPRequestDuration, route)
	})
}

// isWebSocketUpgrade reports whether the request is asking to upgrade
// to a WebSocket connection, per RFC 6455 §4.1's required headers.
func isWebSocketUpgrade(r *http.Request) bool {
	upgrade := false
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			upgrade = true
			break
		}
	}
	return upgrade && strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
