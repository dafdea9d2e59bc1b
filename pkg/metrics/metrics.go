package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cliscale_sessions_total",
			Help: "Current number of sessions by status (pending, ready)",
		},
		[]string{"status"},
	)

	SessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cliscale_sessions_created_total",
			Help: "Total number of sessions admitted",
		},
	)

	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cliscale_sessions_expired_total",
			Help: "Total number of sessions removed by the TTL pruner",
		},
	)

	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cliscale_tokens_issued_total",
			Help: "Total number of capability tokens minted",
		},
	)

	TokensConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cliscale_tokens_consumed_total",
			Help: "Total number of capability tokens successfully consumed",
		},
	)

	TokensReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cliscale_tokens_replayed_total",
			Help: "Total number of attach attempts rejected as replayed",
		},
	)

	ProxyConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliscale_proxy_connections_active",
			Help: "Current number of proxying WebSocket connections",
		},
	)

	ProxyBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliscale_proxy_bytes_total",
			Help: "Total bytes relayed through the proxy, by direction",
		},
		[]string{"direction"},
	)

	ProxyClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliscale_proxy_closed_total",
			Help: "Total proxy sessions closed, by close reason",
		},
		[]string{"reason"},
	)

	PrunerCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cliscale_pruner_cycles_total",
			Help: "Total number of TTL pruner sweeps completed",
		},
	)

	PrunerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliscale_pruner_duration_seconds",
			Help:    "Duration of a single TTL pruner sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	EndpointResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliscale_endpoint_resolve_duration_seconds",
			Help:    "Duration of resolving a worker's network endpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrchestratorOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliscale_orchestrator_op_duration_seconds",
			Help:    "Orchestrator driver operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliscale_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliscale_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsTotal,
		SessionsCreatedTotal,
		SessionsExpiredTotal,
		TokensIssuedTotal,
		TokensConsumedTotal,
		TokensReplayedTotal,
		ProxyConnectionsActive,
		ProxyBytesTotal,
		ProxyClosedTotal,
		PrunerCyclesTotal,
		PrunerDuration,
		EndpointResolveDuration,
		OrchestratorOpDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus exposition HTTP handler, mounted at
// /metrics on both planes.
func Handler() http.Handler {
	return promhttp.Handler()
}
