package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all indicator routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/indicators", func(r chi.Router) {
		r.Post("/compute", h.HandleCompute)
		r.Post("/panel", h.HandleComputePanel)
	})
}
