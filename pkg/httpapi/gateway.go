package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/arakoodev/cliscale/pkg/gateway"
	"github.com/arakoodev/cliscale/pkg/metrics"
)

// NewGatewayRouter builds the WebSocket Gateway's HTTP surface: the
// combined terminal-UI/attach path and the health endpoints.
func NewGatewayRouter(svc *gateway.Service) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/ws/{id}", wsHandler(svc)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// wsHandler dispatches on whether the request carries WebSocket upgrade
// headers: a plain GET serves the terminal UI asset, an Upgrade request
// is accepted and handed to Service.Attach, which performs token
// verification itself and reports failures as close codes.
func wsHandler(svc *gateway.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isWebSocketUpgrade(r) {
			svc.ServeTerminalUI(w, r)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		sessionID := mux.Vars(r)["id"]
		token := r.URL.Query().Get("token")
		svc.Attach(r.Context(), conn, sessionID, token)
	}
}
