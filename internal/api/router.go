package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the database ping behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Authenticated in the handler: ticket or token query parameter.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/users/me", s.handleGetMe)
			r.Patch("/users/me", s.handleUpdateMe)

			r.Route("/experiments", func(r chi.Router) {
				r.Get("/", s.handleListExperiments)
				r.Post("/", s.handleCreateExperiment)
				r.Get("/queue", s.handlePeekQueue)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetExperiment)
					r.Patch("/", s.handlePatchExperiment)
					r.Delete("/", s.handleDeleteExperiment)
					r.Get("/results", s.handleExperimentResults)
					r.Delete("/results", s.handleDeleteExperiment)
				})
			})

			r.Route("/results", func(r chi.Router) {
				r.Get("/", s.handleListResults)
				r.Post("/", s.handleCreateResult)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetResult)
					r.Get("/data", s.handleGetResultData)
					r.Delete("/", s.handleDeleteResult)
				})
			})

			r.Get("/audit-logs", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth reports liveness and, when a database is wired, its ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"ws_clients":     s.hub.ClientCount(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Error("health check: database unavailable", "error", err)
			body["status"] = "degraded"
			body["database"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}

	writeJSON(w, http.StatusOK, body)
}
