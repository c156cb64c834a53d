package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceguard/internal/metrics"
	"github.com/kozaktomas/faceguard/internal/web/handlers"
	"github.com/kozaktomas/faceguard/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	adminID := s.config.Admin.ID

	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Engine, s.deps.Extractor, s.tokens, s.log)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Identities, s.deps.Extractor, s.deps.Photos, s.deps.Index, s.deps.Engine, adminID, s.log)
	profileHandler := handlers.NewProfileHandler(s.deps.Identities, s.log)
	eventsHandler := handlers.NewEventsHandler(s.deps.Events, s.log)
	alertsHandler := handlers.NewAlertsHandler(s.deps.Alerts, s.log)
	trainingHandler := handlers.NewTrainingHandler(s.deps.Engine, s.deps.Extractor, s.deps.Identities, s.log)
	statsHandler := handlers.NewStatsHandler(s.deps.Identities, s.deps.Events, s.log)
	reportsHandler := handlers.NewReportsHandler(s.deps.Events, s.deps.Alerts, s.log)

	// Health and metrics (no auth required)
	s.router.Get("/api/v1/health", s.health)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Camera-facing endpoints and the public board need no token.
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Get("/recognitions", eventsHandler.Recent)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.tokens))

			r.Get("/identities", identitiesHandler.List)
			r.Get("/identities/{id}", identitiesHandler.Get)
			r.Get("/profile", profileHandler.Get)
			r.Put("/profile", profileHandler.Update)
			r.Get("/recognitions/map", eventsHandler.Map)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(adminID))

				r.Post("/identities", identitiesHandler.Create)
				r.Put("/identities/{id}", identitiesHandler.Update)
				r.Delete("/identities/{id}", identitiesHandler.Delete)
				r.Get("/identities/{id}/similar", identitiesHandler.Similar)
				r.Get("/alerts", alertsHandler.List)
				r.Post("/training", trainingHandler.Submit)
				r.Get("/stats", statsHandler.Get)
				r.Get("/reports/export", reportsHandler.Export)
			})
		})
	})
}

// health reports service and database status.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := `{"status":"ok","database":"ok"}`
	code := http.StatusOK

	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			body = `{"status":"degraded","database":"unavailable"}`
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(body))
}
