package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. ws and
// metrics may be nil.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc, metrics http.Handler) {
	r.Get("/health", h.Health)
	if ws != nil {
		r.Get("/ws", ws)
	}
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	create := http.Handler(http.HandlerFunc(h.CreateTenant))
	if h.CreateLimiter != nil {
		create = h.CreateLimiter(create)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/registrations/{id}/tenant", create)
		r.Get("/registrations/{id}/progress", h.GetProgress)

		r.Group(func(r chi.Router) {
			if h.Admin != nil {
				r.Use(h.Admin)
			}
			r.Get("/tenants/{id}", h.GetTenant)
			r.Post("/jobs/{kind}", h.EnqueueJob)
		})
	})
}
