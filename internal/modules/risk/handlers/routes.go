package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/metrics", h.HandleMetrics)
		r.Post("/var", h.HandleVaR)
		r.Post("/correlation", h.HandleCorrelation)
		r.Post("/drawdown", h.HandleDrawdown)
	})
}
