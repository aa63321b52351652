package api

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns the configured router.
//
// Route layout:
//
//	GET /healthz                  – liveness + pipeline state (no auth)
//	GET /api/v1/logs              – parsed log events
//	GET /api/v1/processes         – process lifecycle events
//	GET /api/v1/network           – connection lifecycle events
//	GET /api/v1/metrics           – resource snapshots
//	GET /api/v1/alerts            – alerts, ?expand=evidence for linked rows
//
// pubKey verifies RS256 Bearer tokens on the /api routes. Pass nil to
// disable authentication (local-only deployments and tests).
func NewRouter(srv *Server, pubKey *rsa.PublicKey) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTMiddleware(pubKey, srv.logger))
		}

		r.Get("/logs", srv.handleLogs)
		r.Get("/processes", srv.handleProcesses)
		r.Get("/network", srv.handleNetwork)
		r.Get("/metrics", srv.handleMetrics)
		r.Get("/alerts", srv.handleAlerts)
	})

	return r
}
