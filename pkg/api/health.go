package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/holo-host/hpos-api/pkg/metrics"
)

// mountHealth registers the probe and scrape endpoints. They sit outside the
// /apps and /host trees so monitoring keeps working when the conductor is down.
func (s *Server) mountHealth(r chi.Router) {
	r.Get("/health", metrics.HealthHandler())
	r.Get("/health/live", metrics.LivenessHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Handle("/metrics", metrics.Handler())
}
