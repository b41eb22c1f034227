package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/quantleap/quantd/internal/version"
)

// handleHealth handles health check requests. Every database answers a
// quick ping; any failure degrades the report and the status code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	databases := make(map[string]string, len(s.cfg.Databases))
	for name, db := range s.cfg.Databases {
		if err := db.QuickCheck(ctx); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Database health check failed")
			databases[name] = "unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		databases[name] = "ok"
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"version":   version.Version,
		"service":   "quantd",
		"databases": databases,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
