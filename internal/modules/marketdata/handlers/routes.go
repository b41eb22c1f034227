package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers market data routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/marketdata", func(r chi.Router) {
		r.Get("/symbols", h.HandleListSymbols)
		r.Put("/options", h.HandleIngestOptions)
		r.Route("/{symbol}", func(r chi.Router) {
			r.Put("/bars", h.HandleIngestBars)
			r.Get("/bars", h.HandleGetBars)
			r.Post("/synthetic", h.HandleGenerateSynthetic)
			r.Get("/options", h.HandleOptionsChain)
		})
	})
}
