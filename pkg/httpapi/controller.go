package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/arakoodev/cliscale/pkg/apierror"
	"github.com/arakoodev/cliscale/pkg/controller"
	"github.com/arakoodev/cliscale/pkg/metrics"
	"github.com/arakoodev/cliscale/pkg/ratelimit"
	"github.com/arakoodev/cliscale/pkg/types"
)

// NewControllerRouter builds the Session Controller's HTTP surface:
// POST /api/sessions, GET /api/sessions/{id}, the JWKS document, and the
// health/ready/metrics endpoints.
func NewControllerRouter(svc *controller.Service) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/api/sessions", createSessionHandler(svc)).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", getSessionHandler(svc)).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/jwks.json", jwksHandler(svc)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func createSessionHandler(svc *controller.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierror.New(apierror.CodeBadRequest, "malformed request body"))
			return
		}

		identity := ratelimit.IdentityFromRequest(r)
		resp, err := svc.CreateSession(r.Context(), bearerToken(r), identity, &req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getSessionHandler(svc *controller.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !svc.Authenticate(bearerToken(r)) {
			writeError(w, apierror.ErrUnauthorized)
			return
		}
		id := mux.Vars(r)["id"]
		resp, err := svc.GetSession(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func jwksHandler(svc *controller.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, svc.JWKS())
	}
}
